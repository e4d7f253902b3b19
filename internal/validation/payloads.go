package validation

import (
	"github.com/go-playground/validator/v10"
)

// Article categories and statuses accepted by the editor intake.
var (
	ArticleCategories = []string{"news", "campus", "sports", "entertainment", "politics", "opinion", "technology", "education"}
	ArticleStatuses   = []string{"draft", "published", "archived"}
	AdDurationsDays   = []int{7, 14, 30, 60, 90}
)

// SignupRequest is the account registration payload.
type SignupRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=100,personname"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginRequest is the credential exchange payload. Password strength is not
// checked here so legacy passwords can still sign in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// PasswordResetRequest starts a password reset.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// CommentRequest is a reader comment on an article.
type CommentRequest struct {
	ArticleID string  `json:"articleId" validate:"required,uuid"`
	ParentID  *string `json:"parentId" validate:"omitempty,uuid"`
	Content   string  `json:"content" validate:"required,min=1,max=2000"`
}

// ContactRequest is the public contact form.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100,personname"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	Subject string `json:"subject" validate:"required,min=3,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// StorySubmissionRequest is an anonymous story tip. Author details are optional.
type StorySubmissionRequest struct {
	Title        string `json:"title" validate:"required,min=5,max=200"`
	Content      string `json:"content" validate:"required,min=50,max=20000"`
	Category     string `json:"category" validate:"required,oneof=news campus sports entertainment politics opinion technology education"`
	AuthorName   string `json:"authorName" validate:"omitempty,min=2,max=100,personname"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email,max=254"`
	Anonymous    bool   `json:"anonymous"`
}

// ArticleRequest is the editor article draft.
type ArticleRequest struct {
	Title         string   `json:"title" validate:"required,min=5,max=200"`
	Slug          string   `json:"slug" validate:"omitempty,max=200,slug"`
	Excerpt       string   `json:"excerpt" validate:"omitempty,max=500"`
	Content       string   `json:"content" validate:"required,min=50,max=100000"`
	Category      string   `json:"category" validate:"required,oneof=news campus sports entertainment politics opinion technology education"`
	Status        string   `json:"status" validate:"required,oneof=draft published archived"`
	FeaturedImage string   `json:"featuredImage" validate:"omitempty,url,max=2048"`
	Tags          []string `json:"tags" validate:"omitempty,max=10,dive,required,max=50"`
}

// AdRequest is an advertisement booking. Duration is bucketed in days.
type AdRequest struct {
	Title        string `json:"title" validate:"required,min=3,max=120"`
	Description  string `json:"description" validate:"omitempty,max=1000"`
	TargetURL    string `json:"targetUrl" validate:"required,url,max=2048"`
	ImageURL     string `json:"imageUrl" validate:"omitempty,url,max=2048"`
	DurationDays int    `json:"durationDays" validate:"required,oneof=7 14 30 60 90"`
	ContactEmail string `json:"contactEmail" validate:"required,email,max=254"`
}

// Pagination bounds list queries.
type Pagination struct {
	Page  int `form:"page" validate:"min=1"`
	Limit int `form:"limit" validate:"min=1,max=100"`
}

// DefaultPagination returns the first page of twenty items.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, Limit: 20}
}

// Offset returns the row offset of the page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// CredentialRevocationRequest revokes one session token by its id.
type CredentialRevocationRequest struct {
	CredentialID string `json:"credentialId" validate:"required,uuid"`
	Reason       string `json:"reason" validate:"required,min=3,max=200"`
}

// IDParam is a path identifier.
type IDParam struct {
	ID string `uri:"id" validate:"required,uuid"`
}

// signupStructLevel rejects passwords built from the account's own name or email.
func signupStructLevel(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(SignupRequest)
	if !ok || req.Password == "" {
		return
	}
	if passwordPolicy.Validate(req.Password) != nil {
		return
	}
	if passwordPolicy.ForAccount(req.Name, req.Email).Validate(req.Password) != nil {
		sl.ReportError(req.Password, "password", "Password", "password_context", "")
	}
}
