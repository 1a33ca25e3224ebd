package overseerr

import (
	"context"
	"net/url"
)

// SearchResult 搜索结果的展示模型
type SearchResult struct {
	TmdbID      int
	OverseerrID int // mediaInfo.id，没有本地记录时为 0
	MediaType   string
	Title       string
	Year        string
	PosterURL   string
	Overview    string
	StatusHD    int
	Status4K    int
}

type apiSearchItem struct {
	ID           int    `json:"id"` // TMDB ID
	MediaType    string `json:"mediaType"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	ReleaseDate  string `json:"releaseDate"`
	FirstAirDate string `json:"firstAirDate"`
	PosterPath   string `json:"posterPath"`
	Overview     string `json:"overview"`
	MediaInfo    *struct {
		ID       int `json:"id"`
		Status   int `json:"status"`
		Status4K int `json:"status4k"`
	} `json:"mediaInfo"`
}

type apiSearchResponse struct {
	Results []apiSearchItem `json:"results"`
}

// Search 按标题搜索媒体并整形为展示模型
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)

	var resp apiSearchResponse
	if _, err := c.call(ctx, callOpts{
		method:    "GET",
		path:      "/search",
		query:     params,
		timeout:   timeoutStandard,
		useAPIKey: true,
	}, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, item := range resp.Results {
		// person 等无法请求的结果直接跳过
		if item.MediaType != "movie" && item.MediaType != "tv" {
			continue
		}

		date := item.ReleaseDate
		if item.MediaType == "tv" {
			date = item.FirstAirDate
		}

		result := SearchResult{
			TmdbID:    item.ID,
			MediaType: item.MediaType,
			Title:     firstNonEmpty(item.Name, item.OriginalName, item.Title, FallbackTitle),
			Year:      extractYear(date),
			Overview:  item.Overview,
			StatusHD:  MediaStatusUnknown,
			Status4K:  MediaStatusUnknown,
		}
		if item.PosterPath != "" {
			result.PosterURL = posterBaseURL + item.PosterPath
		}
		if item.MediaInfo != nil {
			result.OverseerrID = item.MediaInfo.ID
			if item.MediaInfo.Status > 0 {
				result.StatusHD = item.MediaInfo.Status
			}
			if item.MediaInfo.Status4K > 0 {
				result.Status4K = item.MediaInfo.Status4K
			}
		}
		results = append(results, result)
	}

	c.log.Infof("搜索 %q 返回 %d 条可请求结果", query, len(results))
	return results, nil
}

// RequestParams 提交媒体请求的参数。
// Cookie 非空时以会话身份提交，否则用 API Key 并可携带 UserID 代为请求。
// Seasons 为空表示整剧（all）。
type RequestParams struct {
	TmdbID    int
	MediaType string
	Is4K      bool
	UserID    int // 0 表示不指定
	Seasons   []int
	Cookie    string
}

// SubmitRequest 向 Overseerr 提交媒体请求。
// 201 表示创建成功，202 表示季已请求过，两者都按成功处理。
func (c *Client) SubmitRequest(ctx context.Context, p RequestParams) (alreadyRequested bool, err error) {
	payload := map[string]any{
		"mediaType": p.MediaType,
		"mediaId":   p.TmdbID,
		"is4k":      p.Is4K,
	}
	if p.UserID > 0 && p.Cookie == "" {
		payload["userId"] = p.UserID
	}
	if p.MediaType == "tv" {
		if len(p.Seasons) == 0 {
			payload["seasons"] = "all"
		} else {
			payload["seasons"] = p.Seasons
		}
	}

	resp, err := c.call(ctx, callOpts{
		method:    "POST",
		path:      "/request",
		body:      payload,
		timeout:   timeoutStandard,
		cookie:    p.Cookie,
		useAPIKey: p.Cookie == "",
	}, nil)
	if err != nil {
		return false, err
	}
	return resp.StatusCode() == 202, nil
}
