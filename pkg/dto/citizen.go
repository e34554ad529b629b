package dto

import "github.com/google/uuid"

// CreateCitizenForm is the multipart body of POST /v1/citizens; the
// reference picture arrives in the "image" file field.
type CreateCitizenForm struct {
	Name       string `form:"name" binding:"required"`
	NationalID string `form:"national_id" binding:"required"`
	Address    string `form:"address" binding:"required"`
}

type CitizenResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	NationalID string    `json:"national_id"`
	Address    string    `json:"address"`
	PictureURL string    `json:"picture"`
	Status     string    `json:"status"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
}

type CitizenListResponse struct {
	Success  bool              `json:"success"`
	Citizens []CitizenResponse `json:"citizens"`
}

type CitizenEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Citizen CitizenResponse `json:"citizen"`
}
