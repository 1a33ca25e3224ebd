package handler

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"seerr-relay/app/overseerr"
)

// mediaEmoji 媒体类型图标
func mediaEmoji(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "movie":
		return "🍿"
	case "tv":
		return "📺"
	case "anime":
		return "⛩️"
	}
	return "❓"
}

// mediaTypeDisplay 媒体类型展示名
func mediaTypeDisplay(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "movie":
		return "Movie"
	case "tv":
		return "TV Series"
	case "anime":
		return "Anime"
	}
	return "Media"
}

// truncate 截断长文本，保持标题区可读。
// 按字节预算截，但只在 rune 边界下刀，避免产出非法 UTF-8。
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// requestCaption 单条待审批请求的消息正文
func requestCaption(item overseerr.EnrichedMedia) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s (%s)*\n", mediaEmoji(item.MediaType), item.Title, item.Year)
	fmt.Fprintf(&b, "👤 Requested by: %s\n", requesterDisplay(item.Requester))
	fmt.Fprintf(&b, "🆔 Request ID: %d\n", item.RequestID)
	fmt.Fprintf(&b, "📅 Requested: %s\n", formatRequestAge(item.CreatedAt))

	if item.Rating > 0 {
		fmt.Fprintf(&b, "⭐ Rating: %.1f\n", item.Rating)
	}
	if item.Runtime > 0 {
		fmt.Fprintf(&b, "⏱️ Runtime: %d min\n", item.Runtime)
	}
	if len(item.Genres) > 0 {
		genres := item.Genres
		if len(genres) > 3 {
			genres = genres[:3]
		}
		fmt.Fprintf(&b, "🎭 Genres: %s\n", strings.Join(genres, ", "))
	}
	if item.Overview != "" {
		fmt.Fprintf(&b, "\n📋 %s", truncate(item.Overview, 200))
	}
	if item.Degraded {
		b.WriteString("\n\n⚠️ _Unable to load enhanced details_")
	}
	return b.String()
}

// requesterDisplay 发起人展示名，优先用 @username
func requesterDisplay(r overseerr.Requester) string {
	if r.Username != "" {
		return "@" + r.Username
	}
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return "Unknown User"
}

// formatRequestAge 请求提交时间的相对展示
func formatRequestAge(createdAt time.Time) string {
	if createdAt.IsZero() {
		return "Unknown time"
	}

	diff := time.Since(createdAt)
	switch {
	case diff >= 24*time.Hour:
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d %s ago", days, plural("day", days))
	case diff >= time.Hour:
		hours := int(diff.Hours())
		return fmt.Sprintf("%d %s ago", hours, plural("hour", hours))
	case diff >= time.Minute:
		minutes := int(diff.Minutes())
		return fmt.Sprintf("%d %s ago", minutes, plural("minute", minutes))
	}
	return "Just now"
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
