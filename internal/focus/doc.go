// Package focus scores alignment attempts. It measures image sharpness
// for each separately drizzled exposure and for the combined product,
// decides whether the combined product stayed inside the sharpness
// envelope of its inputs, and computes a similarity index between two
// combined products. Histories are persisted as JSON side files beside
// each product.
package focus
