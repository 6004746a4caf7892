package account

import "fmt"

// Gate is the administrative flag deciding whether an account may log in.
type Gate string

const (
	GatePending  Gate = "pending"
	GateEnabled  Gate = "enabled"
	GateDisabled Gate = "disabled"
)

func (g Gate) Valid() bool {
	switch g {
	case GatePending, GateEnabled, GateDisabled:
		return true
	}
	return false
}

// Allows reports whether the gate lets an account authenticate.
func (g Gate) Allows() bool {
	return g == GateEnabled
}

func (g Gate) String() string {
	return string(g)
}

func ParseGate(raw string) (Gate, error) {
	g := Gate(raw)

	if !g.Valid() {
		return "", &ValidationError{Field: "gate", Message: fmt.Sprintf("must be one of %s, %s, %s", GatePending, GateEnabled, GateDisabled)}
	}

	return g, nil
}

// GateFromBool maps the legacy enabled flag onto the tri-state gate.
func GateFromBool(enabled bool) Gate {
	if enabled {
		return GateEnabled
	}
	return GateDisabled
}

// Resolve picks the requested gate, preferring the explicit gate field.
func (r SetGateRequest) Resolve() (Gate, error) {
	if r.Gate != nil {
		return ParseGate(*r.Gate)
	}

	if r.Enabled != nil {
		return GateFromBool(*r.Enabled), nil
	}

	return "", &ValidationError{Field: "gate", Message: "gate or enabled is required"}
}
