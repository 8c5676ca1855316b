package models

// Coordinate 经纬度坐标
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid 检查坐标是否在合法范围内
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Polygon 多边形顶点序列（首尾隐式闭合）
type Polygon []Coordinate

// Valid 至少 3 个合法顶点
func (p Polygon) Valid() bool {
	if len(p) < 3 {
		return false
	}
	for _, c := range p {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// PolygonSet 区域由一个或多个多边形组成，按并集判断
type PolygonSet []Polygon

// Valid 每个多边形都合法且至少有一个
func (s PolygonSet) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, p := range s {
		if !p.Valid() {
			return false
		}
	}
	return true
}
