package models

// LifecycleState mirrors the numeric state codes owned by the traceability
// contract. The contract may emit codes outside this set; display code always
// falls back to a defined label instead of failing.
type LifecycleState uint8

const (
	StateNew       LifecycleState = 0
	StateDelivered LifecycleState = 1
	StateAccepted  LifecycleState = 2
	StateRejected  LifecycleState = 3
	StateInTransit LifecycleState = 4
	StateForSale   LifecycleState = 5
	StateSold      LifecycleState = 6
)

const (
	LabelUnknown         = "Unknown"
	ConsumerLabelUnknown = "Desconocido"
)

var stateLabels = map[LifecycleState]string{
	StateNew:       "New",
	StateDelivered: "Delivered",
	StateAccepted:  "Accepted",
	StateRejected:  "Rejected",
	StateInTransit: "In transit",
	StateForSale:   "For sale",
	StateSold:      "Sold",
}

// consumerStateLabels is the Spanish-facing table used on the consumer page.
// It covers the extended code range the consumer contract variant emits.
var consumerStateLabels = map[LifecycleState]string{
	0: "Nuevo",
	1: "Entregado",
	2: "Aceptado",
	3: "Rechazado",
	4: "En transporte",
	5: "En venta",
	6: "Comprado",
	7: "En tienda",
	8: "Vendido",
	9: "Perdido",
}

// Label returns the display string for a state code, falling back to
// LabelUnknown for codes outside the known set.
func (s LifecycleState) Label() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return LabelUnknown
}

// ConsumerLabel returns the consumer-facing (Spanish) display string,
// falling back to ConsumerLabelUnknown for unmapped codes.
func (s LifecycleState) ConsumerLabel() string {
	if label, ok := consumerStateLabels[s]; ok {
		return label
	}
	return ConsumerLabelUnknown
}

// Role identifies an actor in the supply chain.
type Role uint8

const (
	RoleFarmer      Role = 0
	RoleRetailer    Role = 1
	RoleTransporter Role = 2
	RoleConsumer    Role = 3
)

var roleLabels = map[Role]string{
	RoleFarmer:      "Farmer",
	RoleRetailer:    "Retailer",
	RoleTransporter: "Transporter",
	RoleConsumer:    "Consumer",
}

var roleNames = map[string]Role{
	"farmer":      RoleFarmer,
	"retailer":    RoleRetailer,
	"transporter": RoleTransporter,
	"consumer":    RoleConsumer,
}

// Label returns the display string for a role, falling back to LabelUnknown.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return LabelUnknown
}

// ParseRole resolves a lowercase role name used in API routes.
func ParseRole(name string) (Role, bool) {
	role, ok := roleNames[name]
	return role, ok
}

func (r Role) String() string {
	switch r {
	case RoleFarmer:
		return "farmer"
	case RoleRetailer:
		return "retailer"
	case RoleTransporter:
		return "transporter"
	case RoleConsumer:
		return "consumer"
	}
	return "unknown"
}
