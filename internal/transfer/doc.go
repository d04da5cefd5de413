// Package transfer implements chunked bulk transfer over packet channels.
//
// A Sender splits a byte stream into fixed size chunks and sends them on
// the ChunkedTransfer channel. A Receiver reassembles one session into a
// private temp file by writing every chunk at Index*ChunkSize, so chunks
// may arrive in any order. The session completes once the final chunk has
// announced the total and every index up to it has been written.
package transfer
