package mime

// Extension maps a lowercase file extension (no dot) to its content class.
// Built once at startup; lookups never allocate.
var Extension = map[string]ContentType{
	"7z":    Application,
	"apng":  Image,
	"avif":  Image,
	"avi":   Video,
	"bin":   Application,
	"bmp":   Image,
	"bz":    Application,
	"bz2":   Application,
	"css":   Text,
	"csv":   Text,
	"doc":   Application,
	"docx":  Application,
	"eot":   Font,
	"flac":  Audio,
	"gif":   Image,
	"gz":    Application,
	"htm":   Text,
	"html":  Text,
	"ico":   Image,
	"ics":   Text,
	"jar":   Application,
	"jpeg":  Image,
	"jpg":   Image,
	"js":    Text,
	"json":  Application,
	"map":   Application,
	"md":    Text,
	"mid":   Audio,
	"midi":  Audio,
	"mjs":   Text,
	"mkv":   Video,
	"mp3":   Audio,
	"mp4":   Video,
	"mpeg":  Video,
	"oga":   Audio,
	"ogg":   Audio,
	"ogv":   Video,
	"opus":  Audio,
	"otf":   Font,
	"pdf":   Application,
	"php":   Application,
	"png":   Image,
	"ppt":   Application,
	"pptx":  Application,
	"rar":   Application,
	"rtf":   Application,
	"sh":    Application,
	"svg":   Image,
	"swf":   Application,
	"tar":   Application,
	"tif":   Image,
	"tiff":  Image,
	"ts":    Video,
	"ttf":   Font,
	"txt":   Text,
	"wasm":  Application,
	"wav":   Audio,
	"weba":  Audio,
	"webm":  Video,
	"webp":  Image,
	"woff":  Font,
	"woff2": Font,
	"xhtml": Application,
	"xls":   Application,
	"xlsx":  Application,
	"xml":   Application,
	"zip":   Application,
	"zst":   Application,
}
