package overseerr

import (
	"strings"
	"time"
)

// 媒体可用性状态码，与 Overseerr 保持一致
const (
	MediaStatusUnknown            = 1
	MediaStatusPending            = 2
	MediaStatusProcessing         = 3
	MediaStatusPartiallyAvailable = 4
	MediaStatusAvailable          = 5
)

// 请求审批状态码
const (
	requestStatusPendingApproval = 1
	requestStatusApproved        = 2
	requestStatusDeclined        = 3
)

// Requester 发起请求的 Overseerr 用户
type Requester struct {
	ID          int
	DisplayName string
	Username    string
}

// MediaRequest 一条待审批请求的不可变快照，request_id 在整个
// 审批流程中作为唯一标识
type MediaRequest struct {
	RequestID int
	MediaType string // movie、tv、anime 或 unknown
	TmdbID    int
	Title     string
	Year      string
	Quality   string // HD 或 4K
	Requester Requester
	CreatedAt time.Time
	Status    string // pending、approved、declined、processing、available
}

// EnrichedMedia 补充了展示元数据的请求记录。
// 元数据查询失败时退化为 Title="Unknown Title" 的兜底记录，
// 请求本身永远不会因此从列表中消失。
type EnrichedMedia struct {
	MediaRequest
	PosterURL string
	Overview  string
	Genres    []string
	Rating    float64
	Runtime   int
	Degraded  bool // true 表示元数据查询失败，使用了兜底字段
}

// RequestPage 一页待审批请求
type RequestPage struct {
	Items   []MediaRequest
	Total   int
	HasMore bool
}

// ---- 响应报文结构 ----

type apiPageInfo struct {
	Pages    int `json:"pages"`
	PageSize int `json:"pageSize"`
	Results  int `json:"results"`
	Page     int `json:"page"`
}

type apiRequestedBy struct {
	ID           int    `json:"id"`
	DisplayName  string `json:"displayName"`
	Username     string `json:"username"`
	PlexUsername string `json:"plexUsername"`
}

type apiMediaInfo struct {
	ID        int    `json:"id"`
	TmdbID    int    `json:"tmdbId"`
	MediaType string `json:"mediaType"`
	Status    int    `json:"status"`
	Status4K  int    `json:"status4k"`
}

type apiRequest struct {
	ID          int            `json:"id"`
	Status      int            `json:"status"`
	CreatedAt   string         `json:"createdAt"`
	Is4K        bool           `json:"is4k"`
	RootFolder  string         `json:"rootFolder"`
	Type        string         `json:"type"`
	Media       apiMediaInfo   `json:"media"`
	RequestedBy apiRequestedBy `json:"requestedBy"`
}

type apiRequestList struct {
	PageInfo apiPageInfo  `json:"pageInfo"`
	Results  []apiRequest `json:"results"`
}

type apiGenre struct {
	Name string `json:"name"`
}

type apiMediaDetails struct {
	ID             int         `json:"id"`
	MediaType      string      `json:"mediaType"`
	Title          string      `json:"title"`
	Name           string      `json:"name"`
	OriginalTitle  string      `json:"originalTitle"`
	OriginalName   string      `json:"originalName"`
	ReleaseDate    string      `json:"releaseDate"`
	FirstAirDate   string      `json:"firstAirDate"`
	Overview       string      `json:"overview"`
	PosterPath     string      `json:"posterPath"`
	VoteAverage    float64     `json:"voteAverage"`
	Runtime        int         `json:"runtime"`
	EpisodeRunTime []int       `json:"episodeRunTime"`
	Genres         []apiGenre  `json:"genres"`
	Seasons        []apiSeason `json:"seasons"`
}

type apiSeason struct {
	SeasonNumber int `json:"seasonNumber"`
	EpisodeCount int `json:"episodeCount"`
}

// toMediaRequest 把 API 报文转换为领域快照
func (r apiRequest) toMediaRequest() MediaRequest {
	mediaType := r.Media.MediaType
	if mediaType == "" {
		mediaType = r.Type
	}
	if mediaType == "" {
		mediaType = "unknown"
	}
	// 根目录带 anime 的 TV 请求归为 anime
	if strings.Contains(strings.ToLower(r.RootFolder), "anime") {
		mediaType = "anime"
	}

	quality := "HD"
	if r.Is4K {
		quality = "4K"
	}

	displayName := r.RequestedBy.DisplayName
	if displayName == "" {
		displayName = r.RequestedBy.PlexUsername
	}
	if displayName == "" {
		displayName = "Unknown User"
	}

	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)

	return MediaRequest{
		RequestID: r.ID,
		MediaType: mediaType,
		TmdbID:    r.Media.TmdbID,
		Quality:   quality,
		Requester: Requester{
			ID:          r.RequestedBy.ID,
			DisplayName: displayName,
			Username:    r.RequestedBy.Username,
		},
		CreatedAt: createdAt,
		Status:    requestStatusString(r.Status, r.Media.Status),
	}
}

// requestStatusString 合并审批状态与媒体可用性为一个对外状态
func requestStatusString(requestStatus, mediaStatus int) string {
	switch requestStatus {
	case requestStatusDeclined:
		return "declined"
	case requestStatusApproved:
		switch mediaStatus {
		case MediaStatusAvailable, MediaStatusPartiallyAvailable:
			return "available"
		case MediaStatusProcessing:
			return "processing"
		}
		return "approved"
	default:
		return "pending"
	}
}

// InterpretStatus 把媒体状态码转成展示文本
func InterpretStatus(code int) string {
	switch code {
	case MediaStatusUnknown:
		return "Unknown"
	case MediaStatusPending:
		return "Pending"
	case MediaStatusProcessing:
		return "Processing"
	case MediaStatusPartiallyAvailable:
		return "Partially Available"
	case MediaStatusAvailable:
		return "Available"
	}
	return "Unknown"
}

// CanRequest 该状态下是否还能发起请求
func CanRequest(code int) bool {
	return code == MediaStatusUnknown || code == MediaStatusPending
}

// extractYear 从 yyyy-mm-dd 日期里取年份
func extractYear(date string) string {
	if len(date) >= 4 && strings.Contains(date, "-") {
		return date[:4]
	}
	return "Unknown Year"
}
