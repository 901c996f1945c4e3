package domain

// NoVideoCodec is the codec label the extractor uses for audio-only formats.
const NoVideoCodec = "none"

// ContainerMP4 is the only container the relay serves.
const ContainerMP4 = "mp4"

// Format is one candidate encoding of a source video as reported by the extractor.
// Values are sourced per request and never cached.
type Format struct {
	ID           string
	Container    string
	VideoCodec   string
	HasWatermark bool
	Height       int
	AssetURL     string
}

// HasVideo reports whether the format carries a video track.
func (f Format) HasVideo() bool {
	return f.VideoCodec != NoVideoCodec
}

// Usable reports whether the format points at a fetchable asset.
func (f Format) Usable() bool {
	return f.AssetURL != ""
}

// Info is the extractor result for one source URL.
type Info struct {
	ID      string
	Title   string
	Formats []Format
}
