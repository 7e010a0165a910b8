// Package sequence groups directory listings into numbered image sequences.
//
// A frame name splits into a head, a zero-padded frame number, and a tail
// (the extension plus anything after the number). Files that share head,
// tail, and digit width form one Sequence once at least two of them exist;
// everything else lands in the remainder. The package also parses the
// printf-style patterns ("shot_%04d.exr") job configurations carry.
package sequence
