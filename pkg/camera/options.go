package camera

import (
	"fmt"
	"strconv"

	frame "github.com/mpoegel/picam/pkg/frame"
)

type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

type Flip string

const (
	FlipNone       Flip = "none"
	FlipHorizontal Flip = "horizontal"
	FlipVertical   Flip = "vertical"
	FlipBoth       Flip = "both"
)

type Codec string

const (
	CodecH264  Codec = "H264"
	CodecMJPEG Codec = "MJPEG"
)

// SensorMode selects a fixed sensor readout; zero lets the tool choose.
type SensorMode int

const SensorModeAuto SensorMode = 0

type ExposureMode string

const (
	ExposureOff          ExposureMode = "off"
	ExposureAuto         ExposureMode = "auto"
	ExposureNight        ExposureMode = "night"
	ExposureNightPreview ExposureMode = "nightpreview"
	ExposureBacklight    ExposureMode = "backlight"
	ExposureSpotlight    ExposureMode = "spotlight"
	ExposureSports       ExposureMode = "sports"
	ExposureSnow         ExposureMode = "snow"
	ExposureBeach        ExposureMode = "beach"
	ExposureVeryLong     ExposureMode = "verylong"
	ExposureFixedFPS     ExposureMode = "fixedfps"
	ExposureAntiShake    ExposureMode = "antishake"
	ExposureFireworks    ExposureMode = "fireworks"
)

type AwbMode string

const (
	AwbOff          AwbMode = "off"
	AwbAuto         AwbMode = "auto"
	AwbSun          AwbMode = "sun"
	AwbCloud        AwbMode = "cloud"
	AwbShade        AwbMode = "shade"
	AwbTungsten     AwbMode = "tungsten"
	AwbFluorescent  AwbMode = "fluorescent"
	AwbIncandescent AwbMode = "incandescent"
	AwbFlash        AwbMode = "flash"
	AwbHorizon      AwbMode = "horizon"
	AwbGreyWorld    AwbMode = "greyworld"
)

type MeteringMode string

const (
	MeteringAverage MeteringMode = "average"
	MeteringSpot    MeteringMode = "spot"
	MeteringBacklit MeteringMode = "backlit"
	MeteringMatrix  MeteringMode = "matrix"
)

type FlickerMode string

const (
	FlickerOff  FlickerMode = "off"
	FlickerAuto FlickerMode = "auto"
	Flicker50Hz FlickerMode = "50hz"
	Flicker60Hz FlickerMode = "60hz"
)

type DynamicRange string

const (
	DynamicRangeOff    DynamicRange = "off"
	DynamicRangeLow    DynamicRange = "low"
	DynamicRangeMedium DynamicRange = "medium"
	DynamicRangeHigh   DynamicRange = "high"
)

type ImageEffect string

const (
	EffectNone       ImageEffect = "none"
	EffectNegative   ImageEffect = "negative"
	EffectSolarise   ImageEffect = "solarise"
	EffectSketch     ImageEffect = "sketch"
	EffectDenoise    ImageEffect = "denoise"
	EffectEmboss     ImageEffect = "emboss"
	EffectOilPaint   ImageEffect = "oilpaint"
	EffectHatch      ImageEffect = "hatch"
	EffectGPen       ImageEffect = "gpen"
	EffectPastel     ImageEffect = "pastel"
	EffectWatercolor ImageEffect = "watercolour"
	EffectFilm       ImageEffect = "film"
	EffectBlur       ImageEffect = "blur"
	EffectSaturation ImageEffect = "saturation"
	EffectColorSwap  ImageEffect = "colourswap"
	EffectWashedOut  ImageEffect = "washedout"
	EffectPosterise  ImageEffect = "posterise"
	EffectColorPoint ImageEffect = "colourpoint"
	EffectColorBal   ImageEffect = "colourbalance"
	EffectCartoon    ImageEffect = "cartoon"
)

// Tool names the capture binaries of the legacy and libcamera stacks.
type Tool string

const (
	Raspistill     Tool = "raspistill"
	LibcameraStill Tool = "libcamera-still"
	RpicamStill    Tool = "rpicam-still"
	Raspivid       Tool = "raspivid"
	LibcameraVid   Tool = "libcamera-vid"
	RpicamVid      Tool = "rpicam-vid"
)

// Window is a preview rectangle on the device display.
type Window struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Region is a normalised region of interest, each value in [0, 1].
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SharedOptions are understood by both the still and the video tools.
type SharedOptions struct {
	Width                int          `json:"width,omitempty"`
	Height               int          `json:"height,omitempty"`
	Rotation             Rotation     `json:"rotation,omitempty"`
	Flip                 Flip         `json:"flip,omitempty"`
	Shutter              int          `json:"shutter,omitempty"` // microseconds
	Sharpness            int          `json:"sharpness,omitempty"`
	Contrast             int          `json:"contrast,omitempty"`
	Brightness           *int         `json:"brightness,omitempty"` // 0 is meaningful
	Saturation           int          `json:"saturation,omitempty"`
	ISO                  int          `json:"iso,omitempty"`
	ExposureCompensation int          `json:"exposure_compensation,omitempty"`
	ExposureMode         ExposureMode `json:"exposure_mode,omitempty"`
	AwbMode              AwbMode      `json:"awb_mode,omitempty"`
	AwbGains             *[2]float64  `json:"awb_gains,omitempty"`
	AnalogGain           float64      `json:"analog_gain,omitempty"`
	DigitalGain          float64      `json:"digital_gain,omitempty"`
	ImageEffect          ImageEffect  `json:"image_effect,omitempty"`
	ColorEffect          *[2]int      `json:"color_effect,omitempty"` // U, V
	DynamicRange         DynamicRange `json:"dynamic_range,omitempty"`
	VideoStabilization   bool         `json:"video_stabilization,omitempty"`
	MeteringMode         MeteringMode `json:"metering_mode,omitempty"`
	FlickerMode          FlickerMode  `json:"flicker_mode,omitempty"`
	ROI                  *Region      `json:"roi,omitempty"`
	Preview              *Window      `json:"preview,omitempty"`
	Fullscreen           bool         `json:"fullscreen,omitempty"`
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// args returns the flags common to both tools. keypress asks the tool to wait
// for ENTER on stdin between captures.
func (o SharedOptions) args(keypress bool) []string {
	var args []string
	add := func(a ...string) {
		args = append(args, a...)
	}

	if o.Width > 0 {
		add("--width", itoa(o.Width))
	}
	if o.Height > 0 {
		add("--height", itoa(o.Height))
	}
	if o.Rotation != Rotate0 {
		add("--rotation", itoa(int(o.Rotation)))
	}
	if o.Flip == FlipHorizontal || o.Flip == FlipBoth {
		add("--hflip")
	}
	if o.Flip == FlipVertical || o.Flip == FlipBoth {
		add("--vflip")
	}
	if o.Shutter > 0 {
		add("--shutter", itoa(o.Shutter))
	}
	if o.Sharpness != 0 {
		add("--sharpness", itoa(o.Sharpness))
	}
	if o.Contrast != 0 {
		add("--contrast", itoa(o.Contrast))
	}
	if o.Brightness != nil {
		add("--brightness", itoa(*o.Brightness))
	}
	if o.Saturation != 0 {
		add("--saturation", itoa(o.Saturation))
	}
	if o.ISO > 0 {
		add("--ISO", itoa(o.ISO))
	}
	if o.ExposureCompensation != 0 {
		add("--ev", itoa(o.ExposureCompensation))
	}
	if o.ExposureMode != "" {
		add("--exposure", string(o.ExposureMode))
	}
	if o.AwbMode != "" {
		add("--awb", string(o.AwbMode))
	}
	if o.AwbGains != nil {
		add("--awbgains", ftoa(o.AwbGains[0])+","+ftoa(o.AwbGains[1]))
	}
	if o.AnalogGain > 0 {
		add("--analoggain", ftoa(o.AnalogGain))
	}
	if o.DigitalGain > 0 {
		add("--digitalgain", ftoa(o.DigitalGain))
	}
	if o.ImageEffect != "" {
		add("--imxfx", string(o.ImageEffect))
	}
	if o.ColorEffect != nil {
		add("--colfx", fmt.Sprintf("%d:%d", o.ColorEffect[0], o.ColorEffect[1]))
	}
	if o.DynamicRange != "" {
		add("--drc", string(o.DynamicRange))
	}
	if o.VideoStabilization {
		add("--vstab")
	}
	if o.MeteringMode != "" {
		add("--metering", string(o.MeteringMode))
	}
	if o.FlickerMode != "" {
		add("--flicker", string(o.FlickerMode))
	}
	if r := o.ROI; r != nil {
		add("--roi", fmt.Sprintf("%s,%s,%s,%s", ftoa(r.X), ftoa(r.Y), ftoa(r.Width), ftoa(r.Height)))
	}
	switch {
	case o.Fullscreen:
		add("--fullscreen")
	case o.Preview != nil:
		w := o.Preview
		add("--preview", fmt.Sprintf("%d,%d,%d,%d", w.X, w.Y, w.Width, w.Height))
	default:
		add("--nopreview")
	}
	if keypress {
		add("--keypress")
	}
	return args
}

// Thumbnail sets the size and quality of the preview image embedded in a
// still capture.
type Thumbnail struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`
}

// StillOptions configure the still tool.
type StillOptions struct {
	SharedOptions
	Tool Tool `json:"tool,omitempty"`
	// DelayMS is the time in milliseconds before a one-shot capture.
	DelayMS int  `json:"delay_ms,omitempty"`
	Raw     bool `json:"raw,omitempty"`
	Quality int  `json:"quality,omitempty"`
	Burst   bool `json:"burst,omitempty"`
	// Thumbnail overrides the tool's default thumbnail; NoThumbnail omits it.
	Thumbnail   *Thumbnail `json:"thumbnail,omitempty"`
	NoThumbnail bool       `json:"no_thumbnail,omitempty"`
	// Start and End override the markers bounding a capture.
	Start frame.Marker `json:"start_marker,omitempty"`
	End   frame.Marker `json:"end_marker,omitempty"`
	// MaxBuffer bounds an incomplete capture held in memory.
	MaxBuffer int `json:"max_buffer,omitempty"`
}

func DefaultStillOptions() StillOptions {
	return StillOptions{
		SharedOptions: SharedOptions{Rotation: Rotate0, Flip: FlipNone},
		Tool:          RpicamStill,
		DelayMS:       1,
	}
}

// Args builds the still tool's command line. With keypress set the tool
// keeps running and captures whenever ENTER arrives on stdin.
func (o StillOptions) Args(keypress bool) []string {
	args := o.SharedOptions.args(keypress)
	timeout := o.DelayMS
	if keypress {
		timeout = 0
	}
	args = append(args, "--timeout", itoa(timeout))
	if o.Raw {
		args = append(args, "--raw")
	}
	if o.Quality > 0 {
		args = append(args, "--quality", itoa(o.Quality))
	}
	if o.Burst {
		args = append(args, "--burst")
	}
	switch {
	case o.NoThumbnail:
		args = append(args, "--thumb", "none")
	case o.Thumbnail != nil:
		t := o.Thumbnail
		args = append(args, "--thumb", fmt.Sprintf("%d:%d:%d", t.Width, t.Height, t.Quality))
	}
	return append(args, "--output", "-")
}

// StreamOptions configure the video tool.
type StreamOptions struct {
	SharedOptions
	Tool       Tool       `json:"tool,omitempty"`
	Bitrate    int        `json:"bitrate,omitempty"`
	Framerate  int        `json:"framerate,omitempty"`
	Codec      Codec      `json:"codec,omitempty"`
	SensorMode SensorMode `json:"sensor_mode,omitempty"`
	// Output is a file path; empty streams to stdout.
	Output string `json:"output,omitempty"`
	// Start overrides the marker that begins every MJPEG frame.
	Start frame.Marker `json:"start_marker,omitempty"`
	// MaxBuffer bounds an incomplete frame held in memory.
	MaxBuffer int `json:"max_buffer,omitempty"`
	// MaxPending bounds each subscriber's undelivered frames.
	MaxPending int `json:"max_pending,omitempty"`
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		SharedOptions: SharedOptions{Rotation: Rotate0, Flip: FlipNone},
		Tool:          RpicamVid,
		Bitrate:       17000000,
		Framerate:     30,
		Codec:         CodecMJPEG,
		SensorMode:    SensorModeAuto,
	}
}

// Args builds the video tool's command line. The capture runs until stopped.
func (o StreamOptions) Args() []string {
	args := o.SharedOptions.args(false)
	if o.Bitrate > 0 {
		args = append(args, "--bitrate", itoa(o.Bitrate))
	}
	if o.Framerate > 0 {
		args = append(args, "--framerate", itoa(o.Framerate))
	}
	if o.Codec != "" {
		args = append(args, "--codec", string(o.Codec))
	}
	if o.SensorMode != SensorModeAuto {
		args = append(args, "--mode", itoa(int(o.SensorMode)))
	}
	output := o.Output
	if output == "" {
		output = "-"
	}
	return append(args, "--timeout", "0", "--output", output)
}

// startMarker picks the frame signature for the configured tool unless one
// was set explicitly.
func (o StreamOptions) startMarker() frame.Marker {
	if len(o.Start) > 0 {
		return o.Start
	}
	if o.Tool == Raspivid {
		return frame.RaspividSignature
	}
	return frame.MJPEGStart
}
