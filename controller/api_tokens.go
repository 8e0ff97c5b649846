package controller

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type tokenCreateInput struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type tokenCreated struct {
	ID        uint       `json:"id" xml:"id"`
	Name      string     `json:"name" xml:"name"`
	Token     string     `json:"token" xml:"token"` // shown exactly once
	ExpiresAt *time.Time `json:"expires_at,omitempty" xml:"expires_at,omitempty"`
}

func (ctrl *controller) apiCreateToken(c echo.Context) error {
	var in tokenCreateInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	plain, rec, err := ctrl.model.CreateAPIToken(in.Name, in.ExpiresAt)
	if err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusCreated, tokenCreated{
		ID:        rec.ID,
		Name:      rec.Name,
		Token:     plain,
		ExpiresAt: rec.ExpiresAt,
	})
}

func (ctrl *controller) apiRevokeToken(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := ctrl.model.RevokeAPIToken(id); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
