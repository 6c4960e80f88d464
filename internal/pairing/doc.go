// Package pairing renders pairing codes as scannable QR images.
package pairing
