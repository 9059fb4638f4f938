// Package audio plays decoded narration buffers on the system output device
// through oto/v3. Each buffer becomes a Stream that can be paused, resumed or
// stopped, and reports completion through a callback.
package audio
