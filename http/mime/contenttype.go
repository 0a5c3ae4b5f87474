package mime

// ContentType is the coarse media class of a payload: the part of a MIME
// type before the slash. The proxy's logging policy operates on this level,
// never on full media types.
type ContentType uint8

const (
	Unknown ContentType = iota
	Application
	Audio
	Font
	Image
	Message
	Model
	Multipart
	Text
	Video
)

var names = [...]string{
	Unknown:     "ukn",
	Application: "app",
	Audio:       "audio",
	Font:        "font",
	Image:       "img",
	Message:     "msg",
	Model:       "model",
	Multipart:   "multipart",
	Text:        "txt",
	Video:       "video",
}

func (c ContentType) String() string {
	if int(c) < len(names) {
		return names[c]
	}

	return names[Unknown]
}

// Parse accepts both the full main-type ("application") and the short
// wire/config name ("app").
func Parse(s string) ContentType {
	switch s {
	case "application", "app":
		return Application
	case "audio":
		return Audio
	case "font":
		return Font
	case "image", "img":
		return Image
	case "message", "msg":
		return Message
	case "model":
		return Model
	case "multipart":
		return Multipart
	case "text", "txt":
		return Text
	case "video":
		return Video
	}

	return Unknown
}

func (c ContentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ContentType) UnmarshalText(text []byte) error {
	*c = Parse(string(text))
	return nil
}
