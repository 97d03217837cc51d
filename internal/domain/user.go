package domain

const (
	RoleCustomer  = "customer"
	RoleCollector = "collector"
	RoleAdmin     = "admin"
)

type User struct {
	ID     string   `db:"id" json:"id"`
	Email  string   `db:"email" json:"email"`
	Name   string   `db:"name" json:"name"`
	Role   string   `db:"role" json:"role"`
	Lat    *float64 `db:"lat" json:"lat,omitempty"`
	Lng    *float64 `db:"lng" json:"lng,omitempty"`
	Points int64    `db:"points" json:"points"`
}

// Location returns the registered location, if any.
func (u *User) Location() (lat, lng float64, ok bool) {
	if u == nil || u.Lat == nil || u.Lng == nil {
		return 0, 0, false
	}
	return *u.Lat, *u.Lng, true
}
