package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes = 1 << 20
	maxPageSize  = 100
)

// requestError is a malformed or invalid request body.
type requestError struct {
	fields []fieldError
}

func (e *requestError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

var (
	linkPattern  = regexp.MustCompile(`^https?://.+`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("weblink", func(fl validator.FieldLevel) bool {
		return linkPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
	})
	return v
}

type customerDetails struct {
	FullName string `json:"fullName" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,phone"`
}

type createOrderRequest struct {
	ProductID       string          `json:"productId" validate:"required"`
	ProcessLink     string          `json:"processLink" validate:"required,weblink"`
	CustomerDetails customerDetails `json:"customerDetails" validate:"required"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,oneof=crypto_dodo crypto_coinbase credit_card bank_transfer"`
	CouponCode      string          `json:"couponCode" validate:"omitempty,min=3,max=20"`
}

type updateStatusRequest struct {
	Status     string  `json:"status" validate:"required,oneof=pending processing in_progress completed cancelled refunded"`
	AdminNotes *string `json:"adminNotes" validate:"omitnil,max=1000"`
	Progress   *int    `json:"progress" validate:"omitnil,min=0,max=100"`
}

type validateCouponRequest struct {
	CouponCode string `json:"couponCode" validate:"required"`
	ProductID  string `json:"productId"`
}

type queryOrderRequest struct {
	OrderNumber string `json:"orderNumber"`
}

// decode reads a JSON body into dst and validates it when v is non-nil.
func decode(r *http.Request, v *validator.Validate, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return &requestError{fields: []fieldError{{Field: "body", Message: "malformed JSON"}}}
	}
	if v == nil {
		return nil
	}
	return validate(v, dst)
}

func validate(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}

	fields := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return &requestError{fields: fields}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	_, path, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return path
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "weblink":
		return "must be a valid http(s) URL"
	case "phone":
		return "must be a valid phone number"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// pageParams reads page and limit query parameters.
func pageParams(r *http.Request, defaultLimit int) (page, limit int, err error) {
	page, limit = 1, defaultLimit
	q := r.URL.Query()
	if s := q.Get("page"); s != "" {
		page, err = strconv.Atoi(s)
		if err != nil || page < 1 {
			return 0, 0, &requestError{fields: []fieldError{{Field: "page", Message: "must be a positive integer"}}}
		}
	}
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			return 0, 0, &requestError{fields: []fieldError{{Field: "limit", Message: "must be a positive integer"}}}
		}
	}
	return page, min(limit, maxPageSize), nil
}
