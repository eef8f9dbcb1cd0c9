package location

// AddressLevelType is one tier of the administrative hierarchy, such as
// State, District or Village. Higher Level values are less specific.
type AddressLevelType struct {
	UUID   string  `db:"uuid" json:"uuid"`
	Name   string  `db:"name" json:"name"`
	Level  float64 `db:"level" json:"level"`
	Voided bool    `db:"is_voided" json:"voided"`
}

// AddressLevel is a concrete location in the hierarchy.
type AddressLevel struct {
	UUID       string `db:"uuid" json:"uuid"`
	Title      string `db:"title" json:"title"`
	TypeUUID   string `db:"type_uuid" json:"typeUUID"`
	TypeName   string `json:"typeName"`
	ParentUUID string `db:"parent_uuid" json:"parentUUID,omitempty"`
	Voided     bool   `db:"is_voided" json:"voided"`
}
