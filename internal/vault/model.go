package vault

import "time"

// Algorithm names the container transform recorded in the index.
const Algorithm = "aes-256-cfb"

type InputSource int

const (
	InputSourceFile InputSource = iota
	InputSourceStdin
)

func (i InputSource) String() string {
	if i == InputSourceFile {
		return "file"
	}
	return "stdin"
}

// Item is the index record for one encrypted image.
// The key itself is never recorded here, only the name of its key file.
type Item struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	InputType     string    `json:"input_type"`
	OriginalPath  string    `json:"original_path,omitempty"`
	Format        string    `json:"format"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	PlainSize     int64     `json:"plain_size"`
	Algorithm     string    `json:"algorithm"`
	ContainerFile string    `json:"container_file"`
	KeyFile       string    `json:"key_file"`
}

// ContainerName returns the file name of the container for id.
func ContainerName(id string) string {
	return id + ".bin"
}

// KeyFileName returns the file name of the key file for id.
func KeyFileName(id string) string {
	return id + "_key.txt"
}
