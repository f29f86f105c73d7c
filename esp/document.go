package esp

import (
	"github.com/border-inspection/tourgen/tour"
)

// Document is a project file of the animation tool.
type Document struct {
	ModelVersion    int             `json:"modelVersion"`
	Settings        Settings        `json:"settings"`
	Scenes          []Scene         `json:"scenes"`
	PlaybackManager PlaybackManager `json:"playbackManager"`
}

type Settings struct {
	Name       string     `json:"name"`
	FrameRate  int        `json:"frameRate"`
	Dimensions Dimensions `json:"dimensions"`
	TimeFormat string     `json:"timeFormat"`
	Duration   int        `json:"duration"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Scene struct {
	AnimationModel AnimationModel `json:"animationModel"`
	Duration       int            `json:"duration"`
	Attributes     []Attribute    `json:"attributes"`
}

type AnimationModel struct {
	Roving          bool `json:"roving"`
	Logarithmic     bool `json:"logarithmic"`
	GroupedPosition bool `json:"groupedPosition"`
}

// Attribute is a node of the attribute tree of a scene. Leaves carry
// keyframes, groups carry attributes.
type Attribute struct {
	Type             string      `json:"type"`
	Visible          bool        `json:"visible,omitempty"`
	Value            *Value      `json:"value,omitempty"`
	Attributes       []Attribute `json:"attributes,omitempty"`
	Keyframes        []Keyframe  `json:"keyframes,omitempty"`
	AttributesLocked bool        `json:"attributesLocked,omitempty"`
}

// Value holds the value range of an attribute, or the world of a planet.
type Value struct {
	MaxValueRange *float64 `json:"maxValueRange,omitempty"`
	MinValueRange *float64 `json:"minValueRange,omitempty"`
	Relative      *float64 `json:"relative,omitempty"`
	World         string   `json:"world,omitempty"`
}

type Keyframe struct {
	Time             float64    `json:"time"`
	Value            float64    `json:"value"`
	TransitionIn     Transition `json:"transitionIn"`
	TransitionOut    Transition `json:"transitionOut"`
	TransitionLinked bool       `json:"transitionLinked"`
}

type Transition struct {
	Type string `json:"type"`
}

type PlaybackManager struct {
	Range Range `json:"range"`
}

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Value ranges as exported by the animation tool.
const (
	positionGroupMax = 71488366.22893658
	poiGroupMin      = -6371022.11950216
	altitudeMax      = 65117481
	latitudeLimit    = 89.9999
)

func ptr(v float64) *float64 {
	return &v
}

func ranged(lo, hi float64) *Value {
	return &Value{MinValueRange: ptr(lo), MaxValueRange: ptr(hi)}
}

func relative(lo, hi, rel float64) *Value {
	v := ranged(lo, hi)
	v.Relative = ptr(rel)
	return v
}

func group(name string, value *Value, attrs ...Attribute) Attribute {
	return Attribute{
		Type:             name,
		Visible:          true,
		Value:            value,
		Attributes:       attrs,
		AttributesLocked: value != nil,
	}
}

func track(name string, value *Value, times []float64, values []float64) Attribute {
	kfs := make([]Keyframe, len(times))
	for i := range times {
		kfs[i] = Keyframe{
			Time:             times[i],
			Value:            values[i],
			TransitionIn:     Transition{Type: "linear"},
			TransitionOut:    Transition{Type: "linear"},
			TransitionLinked: true,
		}
	}
	return Attribute{
		Type:             name,
		Visible:          true,
		Value:            value,
		Keyframes:        kfs,
		AttributesLocked: true,
	}
}

// Project builds the document of one part. keyframes are the keyframes of
// the part, aligned with part.Times.
func Project(meta Metadata, part tour.Part, keyframes []tour.Keyframe) *Document {
	n := len(keyframes)
	if len(part.Times) < n {
		n = len(part.Times)
	}
	times := part.Times[:n]
	var camLon, camLat, camAlt, poiLon, poiLat, poiAlt []float64
	for _, kf := range keyframes[:n] {
		camLon = append(camLon, kf.CameraLongitude)
		camLat = append(camLat, kf.CameraLatitude)
		camAlt = append(camAlt, kf.CameraElevation)
		poiLon = append(poiLon, kf.POILongitude)
		poiLat = append(poiLat, kf.POILatitude)
		poiAlt = append(poiAlt, kf.POIElevation)
	}

	camera := group("cameraGroup", nil,
		group("cameraPositionGroup", relative(0, positionGroupMax, 0),
			track("longitude", relative(-1998, 1458.69, 0.6297932414922371), times, camLon),
			track("latitude", relative(-latitudeLimit, latitudeLimit, 0.4999999999401562), times, camLat),
			track("altitude", relative(1, altitudeMax, 0.00001534157092662743), times, camAlt),
		),
		// Rotation is ignored while the camera tracks the point of interest.
		group("cameraRotationGroup", nil,
			track("rotationX", relative(360, 0, 0.2499999987854837), nil, nil),
			track("rotationY", relative(180, 0, 0.49436059161033025), nil, nil),
		),
		group("cameraTargetEffect", nil,
			group("poi", relative(poiGroupMin, positionGroupMax, 0),
				track("longitudePOI", relative(-180, 556.9999999999999, 0.4884667571234736), times, poiLon),
				track("latitudePOI", ranged(-latitudeLimit, latitudeLimit), times, poiLat),
				track("altitudePOI", relative(0, altitudeMax, 0), times, poiAlt),
			),
			Attribute{Type: "influence", Visible: true, Value: ranged(0, 1)},
		),
	)
	environment := Attribute{
		Type: "environmentGroup",
		Attributes: []Attribute{
			{Type: "planet", Visible: true, Value: &Value{World: "earth"}},
		},
	}

	return &Document{
		ModelVersion: ModelVersion,
		Settings: Settings{
			Name:       meta.FileName(),
			FrameRate:  meta.FrameRate,
			Dimensions: Dimensions{Width: meta.Width, Height: meta.Height()},
			TimeFormat: "frames",
			Duration:   meta.Duration,
		},
		Scenes: []Scene{{
			AnimationModel: AnimationModel{GroupedPosition: true},
			Duration:       meta.Duration,
			Attributes:     []Attribute{camera, environment},
		}},
		PlaybackManager: PlaybackManager{Range: Range{End: meta.Duration}},
	}
}
