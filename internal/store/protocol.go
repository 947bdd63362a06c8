package store

// JSON protocol for the cache daemon over a Unix domain socket.
// One request -> one response using json.Encoder/Decoder per connection.

const (
	opGet          = "get"
	opUpsert       = "upsert"
	opDelete       = "delete"
	opDeleteBefore = "delete_before"

	codeNotFound = "not_found"
)

type Request struct {
	Op        string `json:"op"` // "get" | "upsert" | "delete" | "delete_before"
	Key       string `json:"key,omitempty"`
	Value     []byte `json:"value,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"` // unix nanos; record time for upsert, cutoff for delete_before
	// delete_before with a Key deletes only that key.
}

type Response struct {
	OK        bool   `json:"ok"`
	Value     []byte `json:"value,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Count     int    `json:"count,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}
