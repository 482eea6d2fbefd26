package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// RegisterCustomValidators registers the limitly-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("algorithm", validateAlgorithm); err != nil {
		return fmt.Errorf("failed to register algorithm validator: %w", err)
	}
	if err := v.RegisterValidation("redis_url", validateRedisURL); err != nil {
		return fmt.Errorf("failed to register redis_url validator: %w", err)
	}
	return nil
}

func validateAlgorithm(fl validator.FieldLevel) bool {
	_, err := ratelimiter.ParseAlgorithm(fl.Field().String())
	return err == nil
}

// validateRedisURL accepts what go-redis accepts: redis://, rediss:// and unix://.
func validateRedisURL(fl validator.FieldLevel) bool {
	_, err := redis.ParseURL(fl.Field().String())
	return err == nil
}

// Validate checks c against its struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors joins validator errors, naming each field by its
// config key, e.g. limiter.refill_rate.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", key, fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
