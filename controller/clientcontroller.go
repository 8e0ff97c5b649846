package controller

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/model"
)

type clientInput struct {
	Name       string `json:"name"`
	Company    string `json:"company"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Notes      string `json:"notes"`
	Active     *bool  `json:"active"`
}

func (in *clientInput) apply(cl *model.Client) {
	cl.Name = in.Name
	cl.Company = in.Company
	cl.Email = in.Email
	cl.Phone = in.Phone
	cl.Address = in.Address
	cl.City = in.City
	cl.State = in.State
	cl.PostalCode = in.PostalCode
	cl.Country = in.Country
	cl.Notes = in.Notes
	if in.Active != nil {
		cl.Active = *in.Active
	}
}

func (ctrl *controller) apiClientList(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	clients, err := ctrl.model.ListClients(activeOnly)
	if err != nil {
		return domainError(err)
	}
	items := make([]APIClient, len(clients))
	for i := range clients {
		items[i] = toAPIClient(&clients[i])
	}
	return respond(c, http.StatusOK, APIClientList{Items: items})
}

func (ctrl *controller) apiClientGet(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cl, err := ctrl.model.LoadClient(id)
	if err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusOK, toAPIClient(cl))
}

func (ctrl *controller) apiClientCreate(c echo.Context) error {
	var in clientInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	cl := model.Client{Active: true}
	in.apply(&cl)
	if err := ctrl.model.SaveClient(&cl); err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusCreated, toAPIClient(&cl))
}

func (ctrl *controller) apiClientUpdate(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cl, err := ctrl.model.LoadClient(id)
	if err != nil {
		return domainError(err)
	}
	var in clientInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	in.apply(cl)
	if err := ctrl.model.SaveClient(cl); err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusOK, toAPIClient(cl))
}

func (ctrl *controller) apiClientDelete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := ctrl.model.DeleteClient(id); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
