package esp

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/border-inspection/tourgen/tour"

	"github.com/pkg/errors"
)

// VideoConfig holds the rendering and encoding properties.
type VideoConfig struct {
	// Width of the rendered images, the aspect ratio is fixed at 16:9.
	Width int `mapstructure:"width"`

	// FrameRate is the render export frame rate.
	FrameRate int `mapstructure:"frame_rate"`

	// VideoFrameRate is the frame rate of the encoded video. The video
	// appears sped up or slowed down when it differs from FrameRate.
	VideoFrameRate int `mapstructure:"video_frame_rate"`

	// Fade is the cross fade duration of the intro in seconds.
	Fade float64 `mapstructure:"fade"`

	VideoArgs     string `mapstructure:"video_args"`
	ContainerArgs string `mapstructure:"container_args"`

	// FootageDir holds one directory of rendered images per part.
	FootageDir string `mapstructure:"footage_dir"`

	LogoFilter string `mapstructure:"logo_filter"`
}

const ffmpeg = "ffmpeg -v 24 -stats"

// Intro cards of the first part: an empty file name is a black screen. The
// fade duration is added on either side of every card.
var intro = []struct {
	file     string
	duration float64
}{
	{"", .5},
	{"0", 1},
	{"", .5},
	{"1", 0},
	{"2", 2},
	{"", .5},
}

var scripts = template.Must(template.New("part").Parse(`#!/bin/sh
{{- if .Intro}}
convert -size {{.Size}} xc:black "{{.Name}}black.jpeg"
convert -size {{.Size}} xc:black -fill white -pointsize 72 -gravity center -draw "text 0,-30% 'border inspection'" "{{.Name}}0.jpeg"
convert -size {{.Size}} xc:black -fill white -pointsize 32 -gravity center -draw "text 0,-20% '{{.Title}}'" "{{.Name}}1.jpeg"
convert "{{.Name}}1.jpeg" -fill white -pointsize 16 -gravity center -draw "text 0,20% '(runtime: {{.Runtime}})'" "{{.Name}}2.jpeg"
time {{.FFmpeg}} {{range .Intro}}{{.}} {{end}}{{.Input}} -r {{.VideoFrameRate}} -filter_complex "{{.Filters}}" {{.VideoArgs}} {{.ContainerArgs}} "{{.Part}}.mp4"
{{- else}}
time {{.FFmpeg}} {{.Input}} -vf "{{.LogoFilter}}" {{.VideoArgs}} {{.ContainerArgs}} "{{.Part}}.mp4"
{{- end}}
`))

var _ = template.Must(scripts.New("concat").Parse(`#!/bin/bash
ls {{.Name}}pt*.mp4 || exit 1
touch tmp.txt
read -r -a FILES <<< ` + "`ls {{.Name}}pt*.mp4`" + `
N=$((${#FILES[@]}-1))
for (( i=0; i < $N; i++ )); do
  echo "file ${FILES[$i]}" >> tmp.txt
done
LAST=${FILES[$N]}
TRUNCATED="outro-truncated-$LAST"
OUTRO="outro-fadeout-$LAST"
echo "file $TRUNCATED" >> tmp.txt
echo "file $OUTRO" >> tmp.txt
if [ ! -f "$TRUNCATED" ]; then
  NFRAMES=` + "`ffprobe -v error -select_streams v:0 -show_entries stream=nb_frames -of default=nokey=1:noprint_wrappers=1 \"$LAST\"`" + `
  FADESTART=` + "`echo \"2 k $NFRAMES {{.FrameRate}} / 1 - p\" | dc`" + `
  echo "Splitting last video ($LAST) into raw + fadeout part (at $FADESTART)"
  {{.FFmpeg}} -i "$LAST" -ss 0 -t $FADESTART -c copy "$TRUNCATED"
  {{.FFmpeg}} -i "$LAST" -ss $FADESTART -t 1 -vf "fade=out:0:{{.FrameRate}}" "$OUTRO"
fi
echo "Merging $N parts into {{.Name}}.mp4"
{{.FFmpeg}} -f concat -i tmp.txt -c copy -y "{{.Name}}.mp4"
rm tmp.txt
`))

var _ = template.Must(scripts.New("reel").Parse(`#!/bin/sh
convert -size {{.Size}} xc:black -fill white -gravity center -pointsize 60 -draw "text 0,-50% '{{.Title}}'" -pointsize 40 -draw "text 0,20% '(runtime: {{.Runtime}})'" "{{.Name}}title.png"
GAP=20
convert -background transparent \( {{.Name}}title.png $1 +smush $((GAP/2)) \) \( $2 $3 $4 $5 +smush $GAP -resize 49.6% \) \( $6 $7 $8 $9 +smush $GAP -resize 49.65% \) \( ${10} ${11} ${12} ${13} +smush $GAP -resize 49.65% \) -smush $((GAP/2)) -resize 75% {{.Name}}reel.png
`))

type scriptData struct {
	Name           string
	Part           string
	Title          string
	Runtime        string
	Size           string
	FFmpeg         string
	Input          string
	Intro          []string
	Filters        string
	FrameRate      int
	VideoFrameRate int
	VideoArgs      string
	ContainerArgs  string
	LogoFilter     string
}

func newScriptData(meta Metadata, video VideoConfig) scriptData {
	return scriptData{
		Name:           meta.Name,
		Part:           meta.FileName(),
		Title:          quote(meta.DisplayName),
		Runtime:        tour.FormatRuntime(meta.Runtime),
		Size:           fmt.Sprintf("%dx%d", meta.Width, meta.Height()),
		FFmpeg:         ffmpeg,
		FrameRate:      meta.FrameRate,
		VideoFrameRate: video.VideoFrameRate,
		VideoArgs:      video.VideoArgs,
		ContainerArgs:  video.ContainerArgs,
		LogoFilter:     video.LogoFilter,
	}
}

// quote escapes single quotes of text drawn by convert.
func quote(s string) string {
	return strings.Replace(s, "'", `\'`, -1)
}

func seconds(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// FootagePattern is the ffmpeg input pattern of the rendered images of a
// part.
func FootagePattern(dir string, meta Metadata) string {
	digits := 1
	if meta.Duration > 1 {
		digits = int(math.Ceil(math.Log10(float64(meta.Duration))))
	}
	name := meta.FileName()
	return fmt.Sprintf("%s/%s/footage/%s_%%0%dd.jpeg", strings.TrimSuffix(dir, "/"), name, name, digits)
}

// introInputs returns the ffmpeg inputs of the intro cards and the filter
// graph cross fading them into the footage.
func introInputs(meta Metadata, video VideoConfig) ([]string, string) {
	inputs := make([]string, 0, len(intro))
	filters := []string{"[0]format=yuv420p[o0]"}
	var offset float64
	for i, card := range intro {
		d := seconds(card.duration + 2*video.Fade)
		if card.file == "" {
			inputs = append(inputs, fmt.Sprintf(`-f lavfi -i "color=c=black:size=%dx%d:duration=%s:r=%d,format=yuv420p"`,
				meta.Width, meta.Height(), d, video.VideoFrameRate))
		} else {
			inputs = append(inputs, fmt.Sprintf(`-loop 1 -t %s -i "%s%s.jpeg"`, d, meta.Name, card.file))
		}
		offset += card.duration
		filters = append(filters, fmt.Sprintf("[o%d][%d]xfade=offset=%s:duration=%s,format=yuv420p[o%d]",
			i, i+1, seconds(offset+float64(i)*video.Fade), seconds(video.Fade), i+1))
	}
	filters = append(filters, fmt.Sprintf("[o%d]%s", len(intro), video.LogoFilter))
	return inputs, strings.Join(filters, ";")
}

// WritePartScript writes the encoding script of a part. The first part
// starts with the title cards.
func WritePartScript(w io.Writer, meta Metadata, video VideoConfig, first bool) error {
	data := newScriptData(meta, video)
	data.Input = fmt.Sprintf(`-r %d -i "%s"`, video.VideoFrameRate, FootagePattern(video.FootageDir, meta))
	if first {
		data.Intro, data.Filters = introInputs(meta, video)
	}
	return errors.Wrap(scripts.ExecuteTemplate(w, "part", data), "cannot render part script")
}

// WriteConcatScript writes the script merging all encoded parts of a tour.
func WriteConcatScript(w io.Writer, meta Metadata) error {
	data := newScriptData(meta, VideoConfig{})
	return errors.Wrap(scripts.ExecuteTemplate(w, "concat", data), "cannot render concat script")
}

// WriteReelScript writes the script composing the rendered reel frames into
// a single image.
func WriteReelScript(w io.Writer, meta Metadata) error {
	data := newScriptData(meta, VideoConfig{})
	return errors.Wrap(scripts.ExecuteTemplate(w, "reel", data), "cannot render reel script")
}
