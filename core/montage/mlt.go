package montage

import (
	"bytes"
	"encoding/xml"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/parlemonde/clap-sub002/core/project"
	"github.com/parlemonde/clap-sub002/core/timeline"
)

// Output profile of the exported montage.
const (
	Width  = 1920
	Height = 1080
)

// URLMode selects how media URLs are written in the MLT document.
type URLMode int

const (
	// URLFull writes absolute URLs, for rendering on a remote worker.
	URLFull URLMode = iota
	// URLLocal writes paths relative to the archive, for editing in Shotcut.
	URLLocal
)

type FileKind string

const (
	FileImage FileKind = "images"
	FileAudio FileKind = "audios"
)

// File is a media file referenced by a montage.
type File struct {
	Kind FileKind
	// URL as stored in the project.
	URL string
	// Path below the media directory of Kind, for local files.
	Path string
	// Name of the file inside the archive.
	Name  string
	Local bool
}

type (
	Document struct {
		XMLName   xml.Name   `xml:"mlt"`
		LCNumeric string     `xml:"LC_NUMERIC,attr"`
		Producer  string     `xml:"producer,attr"`
		Title     string     `xml:"title,attr,omitempty"`
		Profile   Profile    `xml:"profile"`
		Producers []Producer `xml:"producer"`
		Playlists []Playlist `xml:"playlist"`
		Tractor   Tractor    `xml:"tractor"`
	}

	Profile struct {
		Description     string `xml:"description,attr"`
		Width           int    `xml:"width,attr"`
		Height          int    `xml:"height,attr"`
		Progressive     int    `xml:"progressive,attr"`
		SampleAspectNum int    `xml:"sample_aspect_num,attr"`
		SampleAspectDen int    `xml:"sample_aspect_den,attr"`
		FrameRateNum    int    `xml:"frame_rate_num,attr"`
		FrameRateDen    int    `xml:"frame_rate_den,attr"`
		Colorspace      int    `xml:"colorspace,attr"`
	}

	Property struct {
		Name  string `xml:"name,attr"`
		Value string `xml:",chardata"`
	}

	Producer struct {
		ID         string     `xml:"id,attr"`
		In         int        `xml:"in,attr"`
		Out        int        `xml:"out,attr"`
		Properties []Property `xml:"property"`
		Filters    []Filter   `xml:"filter"`
	}

	Filter struct {
		ID         string     `xml:"id,attr"`
		In         string     `xml:"in,attr,omitempty"`
		Out        string     `xml:"out,attr,omitempty"`
		Properties []Property `xml:"property"`
	}

	// PlaylistItem is either an <entry> or a <blank>.
	PlaylistItem struct {
		XMLName  xml.Name
		Producer string `xml:"producer,attr,omitempty"`
		In       string `xml:"in,attr,omitempty"`
		Out      string `xml:"out,attr,omitempty"`
		Length   string `xml:"length,attr,omitempty"`
	}

	Playlist struct {
		ID    string         `xml:"id,attr"`
		Items []PlaylistItem `xml:",any"`
	}

	Track struct {
		Producer string `xml:"producer,attr"`
		Hide     string `xml:"hide,attr,omitempty"`
	}

	Transition struct {
		ID         string     `xml:"id,attr"`
		Properties []Property `xml:"property"`
	}

	Tractor struct {
		ID          string       `xml:"id,attr"`
		Properties  []Property   `xml:"property"`
		Tracks      []Track      `xml:"track"`
		Transitions []Transition `xml:"transition"`
	}
)

func props(kv ...string) []Property {
	ps := make([]Property, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ps = append(ps, Property{Name: kv[i], Value: kv[i+1]})
	}
	return ps
}

func entry(producer string, frames int) PlaylistItem {
	return PlaylistItem{XMLName: xml.Name{Local: "entry"}, Producer: producer, In: "0", Out: strconv.Itoa(frames)}
}

func blank(frames int) PlaylistItem {
	return PlaylistItem{XMLName: xml.Name{Local: "blank"}, Length: strconv.Itoa(frames)}
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Gain returns the volume filter level, in dB, for a volume in percent.
func Gain(volume int) float64 {
	v := clamp(0.01, 1.5, float64(volume)/100)
	return math.Round(2000*math.Log10(v)) / 100
}

func fontFamily(f string) string {
	if f == "sans-serif" {
		return "Arial"
	}
	return "Times New Roman"
}

type builder struct {
	doc        *Document
	mode       URLMode
	hostURL    string
	producerID int
	files      []File
	seen       map[string]File // by kind and URL
	names      map[string]bool
}

func (b *builder) nextID() string {
	b.producerID++
	return "producer" + strconv.Itoa(b.producerID)
}

func (b *builder) addFile(kind FileKind, rawURL string) File {
	key := string(kind) + ":" + rawURL
	if f, ok := b.seen[key]; ok {
		return f
	}
	f := newFile(kind, rawURL)
	f.Name = b.uniqueName(f.Name)
	b.seen[key] = f
	b.files = append(b.files, f)
	return f
}

// uniqueName suffixes name with -2, -3... until no other file of the archive uses it.
func (b *builder) uniqueName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; b.names[name]; i++ {
		name = stem + "-" + strconv.Itoa(i) + ext
	}
	b.names[name] = true
	return name
}

func (b *builder) resource(f File) string {
	if b.mode == URLLocal {
		return f.Name
	}
	if f.Local {
		return strings.TrimRight(b.hostURL, "/") + f.URL
	}
	return f.URL
}

func newFile(kind FileKind, rawURL string) File {
	f := File{Kind: kind, URL: rawURL, Local: strings.HasPrefix(rawURL, "/api")}
	prefix := "/api/" + string(kind) + "/"
	if f.Local {
		f.Path = strings.TrimPrefix(rawURL, prefix)
		f.Name = strings.TrimPrefix(f.Path, "users/")
		return f
	}
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = u.Path
	}
	f.Name = string(kind) + "/" + path.Base(base)
	return f
}

// audio adds a sound producer delayed or trimmed by offset ms and returns the
// playlist items placing it. The items always last exactly total frames.
func (b *builder) audio(kind FileKind, rawURL string, volume int, offset int, total int) []PlaylistItem {
	if total == 0 {
		return nil
	}
	pre := min(total, timeline.Frames(max(0, offset)))
	skip := timeline.Frames(-min(0, offset))
	length := total - pre
	if length == 0 {
		return []PlaylistItem{blank(total)}
	}
	var items []PlaylistItem
	if pre > 0 {
		items = append(items, blank(pre))
	}
	f := b.addFile(kind, rawURL)
	id := b.nextID()
	prd := Producer{
		ID:  id,
		In:  skip,
		Out: length + skip,
		Properties: props(
			"length", strconv.Itoa(length),
			"eof", "pause",
			"resource", b.resource(f),
			"mlt_service", "avformat-novalidate",
			"audio_index", "0",
			"video_index", "-1",
		),
	}
	if volume != 100 {
		prd.Filters = []Filter{{
			ID:  "filterForProducer" + strconv.Itoa(b.producerID),
			In:  "0",
			Out: strconv.Itoa(length),
			Properties: props(
				"window", "75",
				"max_gain", "20dB",
				"level", strconv.FormatFloat(Gain(volume), 'f', -1, 64),
				"mlt_service", "volume",
			),
		}}
	}
	b.doc.Producers = append(b.doc.Producers, prd)
	return append(items, entry(id, length))
}

func (b *builder) title(t project.Title) string {
	frames := timeline.Frames(t.Duration)
	x := clamp(0, Width, math.Round(t.X*Width/100))
	y := clamp(0, Height, math.Round(t.Y*Height/100))
	w := clamp(0, Width-x, math.Round(t.Width*Width/100))
	h := math.Max(0, Height-y)
	size := strconv.Itoa(int(clamp(10, Height/4, math.Round(Height*t.FontSize/100))))
	geometry := strings.Join([]string{
		strconv.Itoa(int(x)), strconv.Itoa(int(y)), strconv.Itoa(int(w)), strconv.Itoa(int(h)), "1",
	}, " ")

	id := b.nextID()
	b.doc.Producers = append(b.doc.Producers, Producer{
		ID:  id,
		In:  0,
		Out: frames,
		Properties: props(
			"length", strconv.Itoa(frames),
			"eof", "pause",
			"resource", "#00000000",
			"aspect_ratio", "1",
			"mlt_service", "color",
			"mlt_image_format", "rgba",
		),
		Filters: []Filter{{
			ID: "filterForProducer" + strconv.Itoa(b.producerID),
			Properties: props(
				"argument", t.Text,
				"geometry", geometry,
				"family", fontFamily(t.FontFamily),
				"size", size,
				"weight", "500",
				"style", "normal",
				"fgcolour", t.Color,
				"bgcolour", t.BackgroundColor,
				"olcolour", t.BackgroundColor,
				"halign", t.TextAlign,
				"valign", "middle",
				"mlt_service", "dynamictext",
				"shotcut:filter", "dynamicText",
				"shotcut:usePointSize", "1",
				"shotcut:pointSize", size,
			),
		}},
	})
	return id
}

func (b *builder) image(pl project.Plan, frames int) string {
	f := b.addFile(FileImage, pl.ImageURL)
	id := b.nextID()
	b.doc.Producers = append(b.doc.Producers, Producer{
		ID:  id,
		In:  0,
		Out: frames,
		Properties: props(
			"length", strconv.Itoa(frames),
			"eof", "pause",
			"resource", b.resource(f),
			"ttl", "1",
			"aspect_ratio", "1",
			"mlt_service", "qimage",
		),
	})
	return id
}

// Build converts a project to a Shotcut compatible MLT document and lists the
// media files it references, each once. Local URLs are prefixed with hostURL
// in URLFull mode.
func Build(p project.Project, mode URLMode, hostURL string) (*Document, []File) {
	b := &builder{
		doc:     &Document{LCNumeric: "C", Producer: "tractor0", Title: p.Name},
		mode:    mode,
		hostURL: hostURL,
		seen:    map[string]File{},
		names:   map[string]bool{},
	}
	b.doc.Profile = Profile{
		Description:     "HD 1080p 25 fps",
		Width:           Width,
		Height:          Height,
		Progressive:     1,
		SampleAspectNum: 1,
		SampleAspectDen: 1,
		FrameRateNum:    timeline.FrameRate,
		FrameRateDen:    1,
		Colorspace:      709,
	}

	video := Playlist{ID: "video"}
	narration := Playlist{ID: "audio1"}
	music := Playlist{ID: "audio2"}
	var total int
	for _, seq := range p.Data.Sequences {
		if !timeline.IsAvailable(seq) {
			continue
		}
		var frames int
		if seq.Title != nil {
			id := b.title(*seq.Title)
			n := timeline.Frames(seq.Title.Duration)
			video.Items = append(video.Items, entry(id, n))
			frames += n
		}
		for _, pl := range seq.Plans {
			n := timeline.Frames(pl.Duration)
			frames += n
			if pl.ImageURL == "" {
				video.Items = append(video.Items, blank(n))
				continue
			}
			video.Items = append(video.Items, entry(b.image(pl, n), n))
		}

		muted := seq.SoundVolume.Valid && seq.SoundVolume.Int == 0
		if seq.SoundURL != "" && !muted {
			narration.Items = append(narration.Items,
				b.audio(FileAudio, seq.SoundURL, timeline.Volume(seq.SoundVolume), seq.VoiceOffBeginTime.Int, frames)...)
		} else {
			narration.Items = append(narration.Items, blank(frames))
		}
		total += frames
	}

	if p.Data.SoundURL != "" {
		music.Items = b.audio(FileAudio, p.Data.SoundURL, timeline.Volume(p.Data.SoundVolume), p.Data.SoundBeginTime, total)
	}

	black := Producer{
		ID:  "black",
		In:  0,
		Out: total,
		Properties: props(
			"length", strconv.Itoa(total),
			"eof", "pause",
			"resource", "0",
			"aspect_ratio", "1",
			"mlt_service", "color",
			"mlt_image_format", "rgba",
		),
	}
	b.doc.Producers = append([]Producer{black}, b.doc.Producers...)
	background := Playlist{ID: "background", Items: []PlaylistItem{entry("black", total)}}
	b.doc.Playlists = []Playlist{background, video, narration, music}

	mix := func(i int) Transition {
		return Transition{
			ID: "transition" + strconv.Itoa(i),
			Properties: props(
				"a_track", "0",
				"b_track", strconv.Itoa(i+1),
				"mlt_service", "mix",
				"always_active", "1",
				"sum", "1",
			),
		}
	}
	b.doc.Tractor = Tractor{
		ID: "tractor0",
		Properties: props(
			"shotcut", "1",
			"shotcut:projectAudioChannels", "2",
			"shotcut:projectFolder", "1",
		),
		Tracks: []Track{
			{Producer: "background"},
			{Producer: "video", Hide: "audio"},
			{Producer: "audio1", Hide: "video"},
			{Producer: "audio2", Hide: "video"},
		},
		Transitions: []Transition{mix(0), mix(1), mix(2)},
	}
	return b.doc, b.files
}

// Marshal encodes the document with an XML header.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
