// Package token produces the random material pairlink hands out: API key
// secrets, pairing references and key seeds. It also digests secrets for
// storage and compares them in constant time.
package token
