// Package mail is the adapter between the digest dispatcher and the mail
// collaborator. The dispatcher builds a Digest artifact; this package renders
// it to HTML and hands it to a Sender. The core never retries a failed send
// within the same day — the next batch picks the user up again.
package mail

// DigestArticle is one recommended article as it appears in the email.
// ReadLink and SaveLink embed the per-impression traces.
type DigestArticle struct {
	ArticleID   string   `json:"article_id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Explanation string   `json:"explanation"`
	ReadLink    string   `json:"read_link"`
	SaveLink    string   `json:"save_link"`
}

// DigestDay groups one calendar day's articles.
type DigestDay struct {
	Label    string          `json:"label"`
	Articles []DigestArticle `json:"articles"`
	DayIndex int             `json:"day_index"`
}

// Digest is the renderable artifact handed to the mail collaborator: one
// email per user per batch.
type Digest struct {
	ToAddress       string      `json:"to_address"`
	Subject         string      `json:"subject"`
	TemplateName    string      `json:"template_name"`
	Name            string      `json:"name"`
	Days            []DigestDay `json:"days"`
	UnsubscribeLink string      `json:"unsubscribe_link"`
}
