package pulsecalc

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/jpalmerr/pulsecalc/internal/calc"
	"github.com/jpalmerr/pulsecalc/internal/eval"
)

// Scheme is the address scheme of calculation channels.
const Scheme = "calc"

// reserved query keys; every other key names a subscription variable
const (
	keyExpr   = "expr"
	keyUpdate = "update"
	keyName   = "name"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Subscription binds an expression variable to the address of its input.
type Subscription = calc.Subscription

// Address is a parsed calc channel address of the form
//
//	calc://<name>?<var>=<address>&...&expr=<expression>&update=[<var>,...]
//
// An address with only a name is listener-only: it attaches to the
// calculation of that name without configuring it.
type Address struct {
	// Name identifies the calculation. Addresses with the same name share
	// one calculation.
	Name string

	// Expression is evaluated over the subscription variables.
	Expression string

	// Subscriptions are sorted by variable name.
	Subscriptions []Subscription

	// Update restricts which variables trigger a recompute. nil means all of
	// them do.
	Update []string

	raw string
}

// ParseAddress parses a calc address. The "calc://" prefix is optional.
//
// Query values are percent-decoded but '+' is kept literally so expressions
// such as "a+b" need no escaping. A literal '&' or '%' inside a value must be
// written as %26 or %25. Blank values are ignored and the first occurrence of
// a repeated key wins.
//
// The returned error is a [*ConfigurationError] when the address has no
// name, when a configured address has no expression, when a variable name
// is not an identifier or is one of the math, np and numpy namespaces, or
// when the update list names an unknown variable.
func ParseAddress(raw string) (Address, error) {
	rest := strings.TrimSpace(raw)
	rest = strings.TrimPrefix(rest, Scheme+"://")

	namePart, query, _ := strings.Cut(rest, "?")
	name, err := url.PathUnescape(strings.TrimSuffix(namePart, "/"))
	if err != nil {
		return Address{}, configErrorf(raw, "bad name encoding: %v", err)
	}
	if name == "" {
		return Address{}, configErrorf(raw, "missing calculation name")
	}

	addr := Address{Name: name, raw: raw}

	params := make(map[string]string)
	var order []string
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.PathUnescape(k)
		if err != nil {
			return Address{}, configErrorf(raw, "bad encoding in key %q: %v", k, err)
		}
		value, err := url.PathUnescape(v)
		if err != nil {
			return Address{}, configErrorf(raw, "bad encoding in value of %q: %v", key, err)
		}
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, seen := params[key]; seen {
			continue
		}
		params[key] = value
		order = append(order, key)
	}

	if len(params) == 0 {
		return addr, nil
	}

	addr.Expression = params[keyExpr]
	if addr.Expression == "" {
		return Address{}, configErrorf(raw, "missing %s", keyExpr)
	}

	for _, key := range order {
		if key == keyExpr || key == keyUpdate || key == keyName {
			continue
		}
		if !identifier.MatchString(key) {
			return Address{}, configErrorf(raw, "variable %q is not a valid identifier", key)
		}
		if eval.IsReserved(key) {
			return Address{}, configErrorf(raw, "variable %q shadows the %s namespace", key, key)
		}
		addr.Subscriptions = append(addr.Subscriptions, Subscription{Name: key, Address: params[key]})
	}
	slices.SortFunc(addr.Subscriptions, func(a, b Subscription) int {
		return strings.Compare(a.Name, b.Name)
	})

	if update, ok := params[keyUpdate]; ok {
		addr.Update = parseUpdateList(update)
		for _, n := range addr.Update {
			if !addr.hasVariable(n) {
				return Address{}, configErrorf(raw, "update names unknown variable %q", n)
			}
		}
	}

	return addr, nil
}

// parseUpdateList turns "[a, b]" into ["a", "b"]. An empty list is kept as a
// non-nil empty slice, which disables value triggers entirely.
func parseUpdateList(s string) []string {
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a Address) hasVariable(name string) bool {
	for _, s := range a.Subscriptions {
		if s.Name == name {
			return true
		}
	}
	return false
}

// ListenerOnly reports whether the address carries no configuration.
func (a Address) ListenerOnly() bool {
	return a.Expression == ""
}

// Raw returns the address text that was parsed.
func (a Address) Raw() string {
	return a.raw
}

// String serializes the address. Variables come first in name order,
// followed by expr and update. Parsing the result yields an equal Address.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(strings.ReplaceAll(escape(a.Name), "?", "%3F"))
	if a.ListenerOnly() {
		return b.String()
	}

	sep := byte('?')
	write := func(key, value string) {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString(escape(key))
		b.WriteByte('=')
		b.WriteString(escape(value))
	}

	for _, s := range a.Subscriptions {
		write(s.Name, s.Address)
	}
	write(keyExpr, a.Expression)
	if a.Update != nil {
		write(keyUpdate, "["+strings.Join(a.Update, ",")+"]")
	}
	return b.String()
}

// escape encodes only what would change the meaning of a query component.
func escape(s string) string {
	return strings.NewReplacer("%", "%25", "&", "%26").Replace(s)
}

func (a Address) config() calc.Config {
	return calc.Config{
		Name:          a.Name,
		Expression:    a.Expression,
		Subscriptions: a.Subscriptions,
		Update:        a.Update,
	}
}
