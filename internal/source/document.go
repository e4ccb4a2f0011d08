// Package source models the upstream profile payload and normalizes it
// into canonical records. Every field is optional in the wire format;
// absence decodes to the zero value rather than propagating nulls.
package source

import "fmt"

// ProfileResponse is the top-level document returned by the profile
// endpoint.
type ProfileResponse struct {
	Data   Data   `json:"data"`
	Status string `json:"status"`
}

// Data wraps the user document. User is nil when the account does not
// exist or the payload is empty, the only parse condition that aborts
// a target.
type Data struct {
	User *UserDocument `json:"user"`
}

// UserDocument is the loosely-structured source representation of one
// account.
type UserDocument struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	FullName            string     `json:"full_name"`
	Biography           string     `json:"biography"`
	ExternalURL         string     `json:"external_url"`
	BioLinks            []BioLink  `json:"bio_links"`
	EdgeFollowedBy      CountEdge  `json:"edge_followed_by"`
	EdgeFollow          CountEdge  `json:"edge_follow"`
	IsVerified          bool       `json:"is_verified"`
	IsPrivate           bool       `json:"is_private"`
	BusinessEmail       string     `json:"business_email"`
	BusinessPhoneNumber string     `json:"business_phone_number"`
	CategoryName        string     `json:"category_name"`
	BusinessAddressJSON string     `json:"business_address_json"`
	Timeline            MediaEdges `json:"edge_owner_to_timeline_media"`
}

// BioLink is one external link attached to the profile.
type BioLink struct {
	URL string `json:"url"`
}

// CountEdge carries a single nested count that may be entirely absent.
type CountEdge struct {
	Count int64 `json:"count"`
}

// MediaEdges is the timeline edge list.
type MediaEdges struct {
	Count int64      `json:"count"`
	Edges []PostEdge `json:"edges"`
}

// PostEdge wraps a single timeline node.
type PostEdge struct {
	Node PostNode `json:"node"`
}

// PostNode is the source representation of one post.
type PostNode struct {
	ID                   string       `json:"id"`
	Shortcode            string       `json:"shortcode"`
	DisplayURL           string       `json:"display_url"`
	VideoURL             string       `json:"video_url"`
	IsVideo              bool         `json:"is_video"`
	VideoViewCount       int64        `json:"video_view_count"`
	TakenAtTimestamp     int64        `json:"taken_at_timestamp"`
	AccessibilityCaption string       `json:"accessibility_caption"`
	EdgeMediaToCaption   CaptionEdges `json:"edge_media_to_caption"`
	EdgeLikedBy          CountEdge    `json:"edge_liked_by"`
	EdgeMediaPreviewLike CountEdge    `json:"edge_media_preview_like"`
}

// CaptionEdges is the nested caption-fragment list.
type CaptionEdges struct {
	Edges []CaptionEdge `json:"edges"`
}

// CaptionEdge wraps one caption fragment.
type CaptionEdge struct {
	Node CaptionNode `json:"node"`
}

// CaptionNode carries one caption fragment's text.
type CaptionNode struct {
	Text string `json:"text"`
}

// businessAddress is the shape of the JSON-encoded business_address_json
// blob.
type businessAddress struct {
	CityName      string  `json:"city_name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	StreetAddress string  `json:"street_address"`
	ZipCode       string  `json:"zip_code"`
}

// ProfileURL builds the profile endpoint URL for a username.
func ProfileURL(baseURL, username string) string {
	return fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s", baseURL, username)
}
