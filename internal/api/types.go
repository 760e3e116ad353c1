// Package api holds the JSON bodies exchanged between the taskr client and
// the taskr server. Timestamps are unix milliseconds.
package api

type TaskData struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        int64  `json:"date"`
	TimeStart   int64  `json:"timeStart"`
	TimeEnd     int64  `json:"timeEnd"`
	IsCompleted bool   `json:"isCompleted"`
	IsSecret    bool   `json:"isSecret"`
	GroupID     string `json:"groupId,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type GroupData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	UpdatedAt int64  `json:"updatedAt"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SocialLoginRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"idToken"`
}

type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
	User         User   `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
