package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Address 逆地理编码得到的结构化地址
type Address struct {
	FormattedAddress string `json:"formatted_address,omitempty"`
	Country          string `json:"country,omitempty"`
	State            string `json:"state,omitempty"`
	City             string `json:"city,omitempty"`
	Suburb           string `json:"suburb,omitempty"`
	Road             string `json:"road,omitempty"`
	HouseNumber      string `json:"house_number,omitempty"`
	Postcode         string `json:"postcode,omitempty"`
}

// Value 以 JSONB 存储
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 从 JSONB 读取
func (a *Address) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported address type %T", value)
	}
}
