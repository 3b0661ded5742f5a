package form

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ValidateStruct works like validation.ValidateStruct but returns an
// InvalidArgument status carrying one field violation per failed rule.
func ValidateStruct(structPtr interface{}, rules ...*validation.FieldRules) error {
	br := &errdetails.BadRequest{}
	for _, rule := range rules {
		err := validation.ValidateStruct(structPtr, rule)
		if err == nil {
			continue
		}
		var ve validation.Errors
		if !errors.As(err, &ve) {
			// internal errors from rules are not the caller's fault
			return status.New(codes.Internal, err.Error()).Err()
		}
		br.FieldViolations = append(br.FieldViolations, fieldViolations(ve)...)
	}
	if len(br.FieldViolations) == 0 {
		return nil
	}

	st, err := status.New(codes.InvalidArgument, "Validation message").WithDetails(br)
	if err != nil {
		return status.New(codes.Internal, err.Error()).Err()
	}
	return st.Err()
}

func fieldViolations(ve validation.Errors) []*errdetails.BadRequest_FieldViolation {
	keys := make([]string, 0, len(ve))
	for k := range ve {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*errdetails.BadRequest_FieldViolation, 0, len(keys))
	for _, k := range keys {
		msg := ve[k].Error()
		if st, ok := status.FromError(ve[k]); ok && st.Code() == codes.NotFound {
			msg = st.Message()
		}
		out = append(out, &errdetails.BadRequest_FieldViolation{
			Field:       k,
			Description: formatErrMsg(msg),
		})
	}
	return out
}

func formatErrMsg(s string) string {
	return ucfirst(strings.Trim(s, " .")) + "."
}

func ucfirst(str string) string {
	for i, v := range str {
		return string(unicode.ToUpper(v)) + str[i+1:]
	}
	return ""
}
