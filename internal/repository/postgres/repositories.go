package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Roles      *RoleRepository
	RateLimits *RateLimitRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Roles:      NewRoleRepository(exec),
		RateLimits: NewRateLimitRepository(exec),
	}
}
