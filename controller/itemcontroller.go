package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/invoicedesk/invoicedesk/model"
)

type itemInput struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

func (ctrl *controller) apiItemList(c echo.Context) error {
	items, err := ctrl.model.ListItems()
	if err != nil {
		return domainError(err)
	}
	out := make([]APIItem, len(items))
	for i := range items {
		out[i] = toAPIItem(&items[i])
	}
	return respond(c, http.StatusOK, APIItemList{Items: out})
}

func (ctrl *controller) apiItemCreate(c echo.Context) error {
	var in itemInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	price, err := parseAmount("price", in.Price)
	if err != nil {
		return err
	}
	it := model.Item{Name: in.Name, Price: price}
	if err := ctrl.model.SaveItem(&it); err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusCreated, toAPIItem(&it))
}

func (ctrl *controller) apiItemUpdate(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	it, err := ctrl.model.LoadItem(id)
	if err != nil {
		return domainError(err)
	}
	var in itemInput
	if err := c.Bind(&in); err != nil {
		return ErrInvalid(err, "invalid request body")
	}
	if in.Name != "" {
		it.Name = in.Name
	}
	if in.Price != "" {
		price, err := parseAmount("price", in.Price)
		if err != nil {
			return err
		}
		it.Price = price
	}
	if err := ctrl.model.SaveItem(it); err != nil {
		return domainError(err)
	}
	return respond(c, http.StatusOK, toAPIItem(it))
}

func (ctrl *controller) apiItemDelete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := ctrl.model.DeleteItem(id); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
