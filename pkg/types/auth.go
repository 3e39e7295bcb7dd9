package types

type UserRole string

const (
	RoleMember UserRole = "USER"
	RoleAdmin  UserRole = "ADMIN"
)

// User is the identity record handed to clients.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
	IsActive  *bool    `json:"isActive,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	Count     *struct {
		Sessions int `json:"sessions"`
	} `json:"_count,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=6"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

type UserResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

type UsersResponse struct {
	Success bool   `json:"success"`
	Users   []User `json:"users"`
}

type UpdateUserRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type APIKey struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Priority  int    `json:"priority"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type CreateAPIKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	Name     string `json:"name" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
	BaseURL  string `json:"baseUrl"`
	Priority int    `json:"priority" binding:"min=0"`
}

type UpdateAPIKeyRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
	Priority *int    `json:"priority,omitempty"`
	BaseURL  *string `json:"baseUrl,omitempty"`
	APIKey   *string `json:"apiKey,omitempty"`
}

type APIKeysResponse struct {
	Success bool     `json:"success"`
	APIKeys []APIKey `json:"apiKeys"`
}

type APIKeyResponse struct {
	Success bool   `json:"success"`
	APIKey  APIKey `json:"apiKey"`
}

type DeletedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
