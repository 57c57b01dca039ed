package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	once     sync.Once
	validate *validator.Validate

	mu            sync.RWMutex
	neighborhoods = map[string]struct{}{}

	slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,39}$`)
)

// Init registers the custom tags on gin's validator and keeps a reference to it.
func Init(knownNeighborhoods []string) {
	SetNeighborhoods(knownNeighborhoods)

	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			v = validator.New()
			v.SetTagName("binding")
		}
		v.RegisterTagNameFunc(jsonTagName)
		if err := register(v); err != nil {
			panic(err)
		}
		validate = v
	})
}

func register(v *validator.Validate) error {
	tags := []struct {
		name string
		fn   validator.Func
	}{
		{"neighborhood", validateNeighborhood},
		{"objectid", validateObjectID},
		{"slug", validateSlug},
	}
	for _, tag := range tags {
		if err := v.RegisterValidation(tag.name, tag.fn); err != nil {
			return fmt.Errorf("failed to register %q validation: %w", tag.name, err)
		}
	}
	return nil
}

func SetNeighborhoods(known []string) {
	mu.Lock()
	defer mu.Unlock()
	neighborhoods = make(map[string]struct{}, len(known))
	for _, n := range known {
		neighborhoods[strings.TrimSpace(n)] = struct{}{}
	}
}

func IsKnownNeighborhood(n string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := neighborhoods[n]
	return ok
}

// Struct validates s with the shared instance; rules are read from `binding` tags, like gin.
func Struct(s interface{}) error {
	if validate == nil {
		Init(nil)
	}
	return validate.Struct(s)
}

func validateNeighborhood(fl validator.FieldLevel) bool {
	return IsKnownNeighborhood(fl.Field().String())
}

func validateObjectID(fl validator.FieldLevel) bool {
	return primitive.IsValidObjectID(fl.Field().String())
}

// IsSlug reports whether s is a lowercase room slug such as "fiesta-mayor".
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}

func validateSlug(fl validator.FieldLevel) bool {
	return IsSlug(fl.Field().String())
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
