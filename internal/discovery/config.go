package discovery

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned before any I/O when a Config cannot be scanned
var ErrInvalidConfig = errors.New("invalid discovery config")

// AddressOrder selects how reachable addresses are sorted
type AddressOrder string

const (
	// OrderLexical sorts addresses as plain strings ("10.0.10.1" before "10.0.2.1")
	OrderLexical AddressOrder = "lexical"
	// OrderNumeric sorts addresses by IPv4 octet value
	OrderNumeric AddressOrder = "numeric"
)

// OctetRange is a half-open [Lo, Hi) range of octet values
type OctetRange struct {
	Lo int `yaml:"lo" json:"lo" validate:"gte=0,lte=255"`
	Hi int `yaml:"hi" json:"hi" validate:"gte=0,lte=256,gtfield=Lo"`
}

// Len returns the number of octet values in the range
func (r OctetRange) Len() int {
	if r.Hi <= r.Lo {
		return 0
	}
	return r.Hi - r.Lo
}

// Config bounds one discovery call
type Config struct {
	// Port is probed on every candidate and used for the identity request
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	// ThirdOctet and FourthOctet span the candidate space under the local /16
	ThirdOctet  OctetRange `yaml:"third_octet" json:"third_octet"`
	FourthOctet OctetRange `yaml:"fourth_octet" json:"fourth_octet"`
	// ProbeTimeout bounds a single TCP connect
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout" validate:"gt=0"`
	// IdentityTimeout bounds a single identity request
	IdentityTimeout time.Duration `yaml:"identity_timeout" json:"identity_timeout" validate:"gt=0"`
	// ProbeConcurrency caps in-flight TCP connects
	ProbeConcurrency int `yaml:"probe_concurrency" json:"probe_concurrency" validate:"gt=0"`
	// IdentityConcurrency caps in-flight identity requests
	IdentityConcurrency int `yaml:"identity_concurrency" json:"identity_concurrency" validate:"gt=0"`
	// Budget caps the wall time of a whole call; zero means no cap
	Budget time.Duration `yaml:"budget" json:"budget" validate:"gte=0"`
	// Order is the sort rule for reachable addresses
	Order AddressOrder `yaml:"order" json:"order" validate:"omitempty,oneof=lexical numeric"`
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Port:                8080,
		ThirdOctet:          OctetRange{Lo: 0, Hi: 50},
		FourthOctet:         OctetRange{Lo: 1, Hi: 255},
		ProbeTimeout:        100 * time.Millisecond,
		IdentityTimeout:     1000 * time.Millisecond,
		ProbeConcurrency:    100,
		IdentityConcurrency: 20,
		Order:               OrderLexical,
	}
}

// Candidates returns how many addresses the config enumerates
func (c Config) Candidates() int {
	return c.ThirdOctet.Len() * c.FourthOctet.Len()
}

// WorstCase estimates the longest a call can take without a budget
func (c Config) WorstCase() time.Duration {
	n := c.Candidates()
	if n == 0 || c.ProbeConcurrency <= 0 || c.IdentityConcurrency <= 0 {
		return 0
	}
	probeWaves := (n + c.ProbeConcurrency - 1) / c.ProbeConcurrency
	fetchWaves := (n + c.IdentityConcurrency - 1) / c.IdentityConcurrency
	return time.Duration(probeWaves)*c.ProbeTimeout + time.Duration(fetchWaves)*c.IdentityTimeout
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the config and returns an error wrapping ErrInvalidConfig
func (c Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("%s %s", fieldPath(e), describe(e)))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}

// fieldPath drops the struct name prefix ("Config.third_octet.hi" -> "third_octet.hi")
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "gtfield":
		return "must be greater than lo (range is empty)"
	case "oneof":
		return "must be one of [" + e.Param() + "]"
	default:
		return "failed " + e.Tag() + " check"
	}
}
