package overseerr

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	posterBaseURL = "https://image.tmdb.org/t/p/w500"

	// 兜底记录字段，元数据查询失败时使用
	FallbackTitle    = "Unknown Title"
	FallbackOverview = "Details unavailable"
)

// MediaDetails 按 TMDB ID 查询媒体详情，带短 TTL 缓存。
// mediaType 只接受 movie 或 tv。
func (c *Client) MediaDetails(ctx context.Context, mediaType string, tmdbID int) (*apiMediaDetails, error) {
	cacheKey := fmt.Sprintf("%s:%d", mediaType, tmdbID)
	if cached, ok := c.metaCache.Get(cacheKey); ok {
		return cached.(*apiMediaDetails), nil
	}

	var details apiMediaDetails
	if _, err := c.call(ctx, callOpts{
		method:    "GET",
		path:      fmt.Sprintf("/%s/%d", mediaType, tmdbID),
		timeout:   timeoutDetail,
		useAPIKey: true,
	}, &details); err != nil {
		return nil, err
	}

	c.metaCache.SetDefault(cacheKey, &details)
	return &details, nil
}

// Seasons 返回剧集的正片季号列表（不含第 0 季特别篇），升序。
func (c *Client) Seasons(ctx context.Context, tmdbID int) ([]int, error) {
	details, err := c.MediaDetails(ctx, "tv", tmdbID)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(details.Seasons))
	for _, s := range details.Seasons {
		if s.SeasonNumber > 0 {
			numbers = append(numbers, s.SeasonNumber)
		}
	}
	return numbers, nil
}

// Enrich 为请求补充展示元数据。永不失败：任何查询错误都返回
// 兜底记录并记一条 warning，调用方据此统计退化条数。
func (c *Client) Enrich(ctx context.Context, req MediaRequest) EnrichedMedia {
	lookupType := req.MediaType
	if lookupType == "anime" {
		lookupType = "tv"
	}
	if (lookupType != "movie" && lookupType != "tv") || req.TmdbID == 0 {
		c.log.Warn("无法补充媒体详情，使用兜底记录",
			zap.Int("request_id", req.RequestID),
			zap.String("media_type", req.MediaType),
			zap.Int("tmdb_id", req.TmdbID))
		return fallbackMedia(req)
	}

	details, err := c.MediaDetails(ctx, lookupType, req.TmdbID)
	if err != nil {
		c.log.Warn("补充媒体详情失败，使用兜底记录",
			zap.Int("request_id", req.RequestID),
			zap.Int("tmdb_id", req.TmdbID),
			zap.Error(err))
		return fallbackMedia(req)
	}

	title := firstNonEmpty(details.Title, details.Name, details.OriginalTitle, details.OriginalName, FallbackTitle)

	date := details.ReleaseDate
	if req.MediaType != "movie" {
		date = details.FirstAirDate
	}

	genres := make([]string, 0, len(details.Genres))
	for _, g := range details.Genres {
		if g.Name != "" {
			genres = append(genres, g.Name)
		}
	}

	// 类型带 Anime 的 TV 剧归为 anime
	mediaType := req.MediaType
	if mediaType == "tv" {
		for _, g := range genres {
			if strings.Contains(strings.ToLower(g), "anime") {
				mediaType = "anime"
				break
			}
		}
	}

	runtime := details.Runtime
	if runtime == 0 && len(details.EpisodeRunTime) > 0 {
		runtime = details.EpisodeRunTime[0]
	}

	posterURL := ""
	if details.PosterPath != "" {
		posterURL = posterBaseURL + details.PosterPath
	}

	overview := details.Overview
	if overview == "" {
		overview = "No description available"
	}

	enriched := EnrichedMedia{
		MediaRequest: req,
		PosterURL:    posterURL,
		Overview:     overview,
		Genres:       genres,
		Rating:       details.VoteAverage,
		Runtime:      runtime,
	}
	enriched.MediaType = mediaType
	enriched.Title = title
	enriched.Year = extractYear(date)
	return enriched
}

// fallbackMedia 构造退化记录，请求字段原样保留
func fallbackMedia(req MediaRequest) EnrichedMedia {
	enriched := EnrichedMedia{
		MediaRequest: req,
		Overview:     FallbackOverview,
		Degraded:     true,
	}
	enriched.Title = FallbackTitle
	if enriched.Year == "" {
		enriched.Year = "Unknown Year"
	}
	return enriched
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
