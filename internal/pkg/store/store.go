package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
)

// DTO is a write shape whose db-tagged fields become named placeholders.
type DTO interface {
	// ToModel builds the full model once the row id is known.
	ToModel(id int) any
}

type Datastorer[T any] interface {
	Create(ctx context.Context, data DTO) (any, error)
	Update(ctx context.Context, id int, data DTO) (any, error)
	Delete(ctx context.Context, id int) error
	QueryRow(ctx context.Context, query string, args ...any) (any, error)
	Get(ctx context.Context, query string, args ...any) (*T, error)
	Select(ctx context.Context, query string, args ...any) ([]T, error)

	// useful for complex operations wherein store interface does not supported.
	Base() *sqlx.DB
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

func getStructFieldNamesFromInstance(instance any) []string {
	typ := reflect.TypeOf(instance)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	var fields []string

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		dbTag := field.Tag.Get("db")

		if dbTag != "" && dbTag != "-" {
			fields = append(fields, dbTag)
		}
	}

	return fields
}

// getStructFieldsFromDTO extracts column names and named placeholders from a
// DTO struct. Types with their own Valuer (jsonb columns) pass through as
// plain placeholders; raw slices become postgres array casts.
func getStructFieldsFromDTO(dto DTO) (columns string, placeholders string) {
	t := reflect.TypeOf(dto)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var columnNames []string
	var placeholderNames []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		dbTag := field.Tag.Get("db")
		if dbTag == "" || dbTag == "-" {
			continue
		}

		columnNames = append(columnNames, dbTag)
		placeholderNames = append(placeholderNames, placeholderFor(field.Type, dbTag))
	}

	return strings.Join(columnNames, ", "), strings.Join(placeholderNames, ", ")
}

func getNonEmptyFieldsFromDTO(dto DTO, params map[string]any) string {
	v := reflect.ValueOf(dto)
	t := reflect.TypeOf(dto)

	if v.Kind() == reflect.Ptr {
		v = v.Elem()
		t = t.Elem()
	}

	var fields []string

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		columnName := field.Tag.Get("db")
		if columnName == "-" {
			continue
		}
		if columnName == "" {
			columnName = strings.ToLower(field.Name)
		}

		// Skip empty fields so partial updates leave the rest alone.
		if value.Kind() == reflect.Ptr && value.IsNil() || value.Kind() == reflect.String && value.String() == "" {
			continue
		}

		fields = append(fields, fmt.Sprintf("%s = %s", columnName, placeholderFor(field.Type, columnName)))
		params[columnName] = value.Interface()
	}

	return strings.Join(fields, ", ")
}

func placeholderFor(t reflect.Type, dbTag string) string {
	if t.Implements(valuerType) {
		return ":" + dbTag
	}

	if t.Kind() == reflect.Slice {
		var pgArrayType string

		switch t.Elem().Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
			pgArrayType = "integer[]"
		case reflect.Float32, reflect.Float64:
			pgArrayType = "float[]"
		case reflect.Bool:
			pgArrayType = "boolean[]"
		default:
			pgArrayType = "text[]"
		}

		return fmt.Sprintf("CAST(:%s AS %s)", dbTag, pgArrayType)
	}

	return ":" + dbTag
}
