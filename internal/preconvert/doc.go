// Package preconvert turns scene-linear frames (typically EXR) into 8-bit sRGB
// PNG intermediates that the encoder can consume.
//
// Conversion runs one oiiotool process per frame across a bounded worker
// pool. Frames whose intermediate already exists are skipped, so a restarted
// job resumes where it stopped. The first failing frame stops dispatch; frames
// already in flight finish before Run returns.
package preconvert
