// Package encoding turns an image sequence into a video with a single ffmpeg
// process.
//
// BuildArgs renders a Plan into the ffmpeg argument list: input rate and start
// number, the setpts/fps retiming filter, codec-family rate control, bt709
// colour tags and the audio track. Supervisor runs that command through a
// proc.Runner, translating "frame=" stats lines into monotonic progress and
// non-zero exits into *Error values that carry the diagnostic tail.
package encoding
