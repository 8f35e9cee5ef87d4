package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/service"
	"instrument-rental-backend/internal/utils"
)

const maxBodyBytes = 1 << 20

type reserveRequest struct {
	ToolID    int32  `json:"toolId" validate:"gt=0"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"gt=0"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type customerInfoRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=40"`
	Company   string `json:"company" validate:"max=200"`
}

type deliveryInfoRequest struct {
	Address      string `json:"address" validate:"required,max=500"`
	Date         string `json:"date" validate:"max=40"`
	TimeSlot     string `json:"timeSlot" validate:"max=40"`
	Instructions string `json:"instructions" validate:"max=1000"`
}

type orderItemRequest struct {
	ToolID    int32  `json:"toolId" validate:"required_without=BookingID,gte=0"`
	Quantity  int32  `json:"quantity" validate:"gte=0"`
	Days      int32  `json:"days" validate:"gte=0"`
	StartDate string `json:"startDate"`
	BookingID *int32 `json:"bookingId" validate:"omitempty,gt=0"`
}

type createOrderRequest struct {
	Items         []orderItemRequest  `json:"items" validate:"required,min=1,max=50,dive"`
	StartDate     string              `json:"startDate" validate:"required"`
	EndDate       string              `json:"endDate" validate:"required"`
	CustomerInfo  customerInfoRequest `json:"customerInfo"`
	DeliveryInfo  deliveryInfoRequest `json:"deliveryInfo"`
	PaymentMethod string              `json:"paymentMethod" validate:"required,max=50"`
	Notes         string              `json:"notes" validate:"max=2000"`
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required"`
}

type deliveryStatusRequest struct {
	DeliveryStatus string `json:"deliveryStatus" validate:"required"`
}

type createToolRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	Brand            string `json:"brand" validate:"max=100"`
	Category         string `json:"category" validate:"required,max=100"`
	Subcategory      string `json:"subcategory" validate:"max=100"`
	Description      string `json:"description" validate:"max=5000"`
	Condition        string `json:"condition" validate:"max=50"`
	PricePerDayCents int64  `json:"pricePerDayCents" validate:"gt=0"`
	TotalStock       int32  `json:"totalStock" validate:"gte=0"`
	InStock          *int32 `json:"inStock" validate:"omitempty,gte=0"`
	Status           string `json:"status"`
}

type updateToolRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=200"`
	Brand            *string `json:"brand" validate:"omitempty,max=100"`
	Category         *string `json:"category" validate:"omitempty,min=1,max=100"`
	Subcategory      *string `json:"subcategory" validate:"omitempty,max=100"`
	Description      *string `json:"description" validate:"omitempty,max=5000"`
	Condition        *string `json:"condition" validate:"omitempty,max=50"`
	PricePerDayCents *int64  `json:"pricePerDayCents" validate:"omitempty,gt=0"`
	TotalStock       *int32  `json:"totalStock" validate:"omitempty,gte=0"`
	InStock          *int32  `json:"inStock" validate:"omitempty,gte=0"`
	Status           *string `json:"status"`
	Note             string  `json:"note" validate:"max=500"`
}

// orderResponse adds the read-time overdue derivation to an order.
type orderResponse struct {
	*domain.Order
	Overdue       bool               `json:"overdue"`
	DisplayStatus domain.OrderStatus `json:"displayStatus"`
}

func newOrderResponse(o *domain.Order, now time.Time) orderResponse {
	return orderResponse{Order: o, Overdue: o.IsOverdue(now), DisplayStatus: o.DisplayStatus(now)}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Field()
		if len(field) == 2 {
			name = field[1]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func pathID(r *http.Request) (int32, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", domain.ErrInvalidInput, raw)
	}
	return int32(id), nil
}

// queryInt32 returns def when the parameter is absent.
func queryInt32(r *http.Request, name string, def int32) (int32, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, raw)
	}
	return int32(v), nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, raw)
	}
	return v, nil
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func queryPage(r *http.Request) (page, limit int32, err error) {
	if page, err = queryInt32(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt32(r, "limit", 0); err != nil {
		return 0, 0, err
	}
	if page < 1 || limit < 0 {
		return 0, 0, fmt.Errorf("%w: page must be positive", domain.ErrInvalidInput)
	}
	return page, limit, nil
}

func (req createOrderRequest) toService() (service.CreateOrderRequest, error) {
	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return service.CreateOrderRequest{}, err
	}
	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		return service.CreateOrderRequest{}, err
	}
	out := service.CreateOrderRequest{
		CustomerInfo: domain.CustomerInfo{
			FirstName: req.CustomerInfo.FirstName,
			LastName:  req.CustomerInfo.LastName,
			Email:     req.CustomerInfo.Email,
			Phone:     req.CustomerInfo.Phone,
			Company:   req.CustomerInfo.Company,
		},
		DeliveryInfo: domain.DeliveryInfo{
			Address:      req.DeliveryInfo.Address,
			Date:         req.DeliveryInfo.Date,
			TimeSlot:     req.DeliveryInfo.TimeSlot,
			Instructions: req.DeliveryInfo.Instructions,
		},
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		StartDate:     start,
		EndDate:       end,
		Items:         make([]service.OrderItemRequest, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		item := service.OrderItemRequest{
			ToolID:    it.ToolID,
			Quantity:  it.Quantity,
			Days:      it.Days,
			BookingID: it.BookingID,
		}
		if it.StartDate != "" {
			d, err := utils.ParseDate(it.StartDate)
			if err != nil {
				return service.CreateOrderRequest{}, err
			}
			item.StartDate = &d
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (req createToolRequest) toDomain() (*domain.Tool, error) {
	tool := &domain.Tool{
		Name:             req.Name,
		Brand:            req.Brand,
		Category:         req.Category,
		Subcategory:      req.Subcategory,
		Description:      req.Description,
		Condition:        req.Condition,
		PricePerDayCents: req.PricePerDayCents,
		TotalStock:       req.TotalStock,
		InStock:          req.TotalStock,
	}
	if req.InStock != nil {
		tool.InStock = *req.InStock
	}
	if req.Status != "" {
		st, err := domain.ParseToolStatus(req.Status)
		if err != nil {
			return nil, err
		}
		tool.Status = st
	}
	return tool, nil
}

func (req updateToolRequest) toService() (service.ToolUpdate, error) {
	upd := service.ToolUpdate{
		Name:             req.Name,
		Brand:            req.Brand,
		Category:         req.Category,
		Subcategory:      req.Subcategory,
		Description:      req.Description,
		Condition:        req.Condition,
		PricePerDayCents: req.PricePerDayCents,
		TotalStock:       req.TotalStock,
		InStock:          req.InStock,
		Note:             req.Note,
	}
	if req.Status != nil {
		st, err := domain.ParseToolStatus(*req.Status)
		if err != nil {
			return service.ToolUpdate{}, err
		}
		upd.Status = &st
	}
	return upd, nil
}
