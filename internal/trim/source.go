package trim

import (
	vidio "github.com/AlexEidt/Vidio"
)

// Source exposes the probed properties of an opened media file.
type Source interface {
	Duration() float64
	HasAudio() bool
	Close()
}

// sourceOpener abstracts media probing for testability.
type sourceOpener func(path string) (Source, error)

// videoSource adapts a Vidio handle to the Source interface.
type videoSource struct {
	*vidio.Video
}

// HasAudio reports whether the file carries an audio stream.
func (s videoSource) HasAudio() bool {
	return s.Video.HasStreams()
}

// openVideoSource probes a media file through Vidio (ffprobe under the
// hood). Open failure means the source is unreadable.
func openVideoSource(path string) (Source, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, err
	}
	return videoSource{Video: video}, nil
}

// ProbeDuration opens a media file and returns its duration in seconds.
func ProbeDuration(path string) (float64, error) {
	src, err := openVideoSource(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	return src.Duration(), nil
}
