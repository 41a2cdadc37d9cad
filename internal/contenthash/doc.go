// Package contenthash computes stable content digests for duplicate detection.
package contenthash
