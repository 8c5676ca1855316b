package geocoder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/models"
)

// DefaultBaseURL 公共 Nominatim 服务
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const maxCacheSize = 10000

// Client 逆地理编码客户端（Nominatim / OpenStreetMap）
type Client struct {
	httpClient *resty.Client
	language   string
	logger     *zap.Logger

	// 缓存：避免重复请求相同坐标
	cache   map[string]*models.Address
	cacheMu sync.RWMutex

	// Nominatim 使用策略要求每秒最多 1 次请求
	minInterval time.Duration
	lastRequest time.Time
	rateMu      sync.Mutex
}

// NewClient 创建逆地理编码客户端，baseURL 为空时使用公共服务
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "parkmeter/1.0 (parking session service)")

	return &Client{
		httpClient:  httpClient,
		language:    "es",
		logger:      logger,
		cache:       make(map[string]*models.Address),
		minInterval: time.Second,
	}
}

// SetLanguage 设置返回地址的语言
func (c *Client) SetLanguage(lang string) {
	c.language = lang
}

// SetMinInterval 设置两次请求的最小间隔
func (c *Client) SetMinInterval(d time.Duration) {
	c.minInterval = d
}

type reverseResponse struct {
	DisplayName string        `json:"display_name"`
	Address     nominatimAddr `json:"address"`
	Error       string        `json:"error"`
}

type nominatimAddr struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Country     string `json:"country"`
	Postcode    string `json:"postcode"`
}

// ReverseGeocode 根据经纬度获取结构化地址
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error) {
	// 精确到小数点后4位，约11米
	cacheKey := fmt.Sprintf("%.4f,%.4f", lat, lng)

	c.cacheMu.RLock()
	if addr, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return addr, nil
	}
	c.cacheMu.RUnlock()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var result reverseResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":             strconv.FormatFloat(lat, 'f', 6, 64),
			"lon":             strconv.FormatFloat(lng, 'f', 6, 64),
			"format":          "json",
			"accept-language": c.language,
		}).
		SetResult(&result).
		Get("/reverse")
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode())
	}
	if result.Error != "" {
		return nil, fmt.Errorf("nominatim error: %s", result.Error)
	}

	// 城市字段可能在 city/town/village 中
	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	address := &models.Address{
		FormattedAddress: result.DisplayName,
		Country:          result.Address.Country,
		State:            result.Address.State,
		City:             city,
		Suburb:           result.Address.Suburb,
		Road:             result.Address.Road,
		HouseNumber:      result.Address.HouseNumber,
		Postcode:         result.Address.Postcode,
	}

	c.cacheMu.Lock()
	if len(c.cache) >= maxCacheSize {
		c.cache = make(map[string]*models.Address)
	}
	c.cache[cacheKey] = address
	c.cacheMu.Unlock()

	c.logger.Debug("Geocoded via Nominatim",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("address", address.FormattedAddress))

	return address, nil
}

// wait 按最小间隔限流
func (c *Client) wait(ctx context.Context) error {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	if elapsed := time.Since(c.lastRequest); elapsed < c.minInterval {
		timer := time.NewTimer(c.minInterval - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.lastRequest = time.Now()
	return nil
}

// CacheSize 缓存条目数
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
