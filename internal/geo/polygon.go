package geo

import (
	"math"

	"github.com/langchou/parkmeter/internal/models"
)

// EarthRadiusKm 地球平均半径
const EarthRadiusKm = 6371.0

// Contains 射线法判断点是否在多边形内（奇偶规则）
// x 轴为纬度，y 轴为经度；少于 3 个顶点的多边形不包含任何点
func Contains(p models.Coordinate, poly models.Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i].Lat, poly[i].Lng
		xj, yj := poly[j].Lat, poly[j].Lng

		if (yi > p.Lng) != (yj > p.Lng) &&
			p.Lat < (xj-xi)*(p.Lng-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// ContainsAny 点在任一多边形内即视为在区域内
func ContainsAny(p models.Coordinate, set models.PolygonSet) bool {
	for _, poly := range set {
		if Contains(p, poly) {
			return true
		}
	}
	return false
}

// Centroid 所有顶点的算术平均（非面积加权），空集合返回 false
func Centroid(set models.PolygonSet) (models.Coordinate, bool) {
	var latSum, lngSum float64
	var count int
	for _, poly := range set {
		for _, c := range poly {
			latSum += c.Lat
			lngSum += c.Lng
			count++
		}
	}
	if count == 0 {
		return models.Coordinate{}, false
	}
	return models.Coordinate{
		Lat: latSum / float64(count),
		Lng: lngSum / float64(count),
	}, true
}

// HaversineMeters 两点间大圆距离（米，保留两位小数）
func HaversineMeters(p1, p2 models.Coordinate) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLat := toRadians(p2.Lat - p1.Lat)
	dLng := toRadians(p2.Lng - p1.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return round2(EarthRadiusKm * c * 1000)
}

// NearCentroid 点在区域内，或与区域中心的平面距离（度）不超过 radius
func NearCentroid(p models.Coordinate, set models.PolygonSet, radius float64) bool {
	if len(set) == 0 {
		return false
	}
	if ContainsAny(p, set) {
		return true
	}
	center, ok := Centroid(set)
	if !ok {
		return false
	}
	return math.Hypot(p.Lat-center.Lat, p.Lng-center.Lng) <= radius
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
