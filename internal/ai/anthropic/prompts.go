package anthropic

import "fmt"

// listingPrompt instructs the model to return a single JSON object and
// nothing else. Condition values match the domain constants.
const listingPrompt = `You are helping a seller draft a marketplace listing from a photo of one item.

Look at the photo and respond with ONLY a JSON object, no prose, no markdown fences:

{
  "title": "short, specific listing title (max 80 chars)",
  "description": "2-4 sentence honest description of the item, its visible features and flaws",
  "condition": "one of: new, like_new, good, fair, for_parts",
  "price_cents": 12300,
  "location": ""
}

Rules:
- title, description and condition are required and must be non-empty.
- price_cents is your best estimate of a fair asking price in US cents; omit the field if you cannot tell what the item is worth.
- location should be omitted or empty unless visible in the photo.
- Describe only what you can actually see. Do not invent brand names or model numbers.`

// buildListingPrompt appends the seller's hint, when provided, after the
// base instructions.
func buildListingPrompt(hint string) string {
	if hint == "" {
		return listingPrompt
	}
	return fmt.Sprintf("%s\n\nSeller's note about the item: %s", listingPrompt, hint)
}
