package mcpserver

// ReviewContract describes the mapping review workflow that LLM consumers
// should follow when confirming or rejecting category mappings.
const ReviewContract = `# Mapping Review Workflow Contract

Every category mapping links one external retailer category (source +
external_id) to at most one node of the internal taxonomy. Reviews MUST
follow these rules.

## Lifecycle

` + "```" + `
pending   --(apply_automatic_match)-->  automatic
pending   --(confirm_mapping)------->   confirmed
pending   --(reject_mapping)-------->   rejected
automatic --(confirm_mapping)------->   confirmed
automatic --(reject_mapping)-------->   rejected
` + "```" + `

## Rules

1. **Automatic matching never overrides a human decision.** Once a mapping
   is confirmed or rejected, apply_automatic_match returns a conflict.
   Manual confirm/reject may revise any state, including each other.
2. **Confirm against existing nodes only.** The taxonomy_node_id passed to
   confirm_mapping or apply_automatic_match must name a node that exists;
   use search_taxonomy to find it. Inventing node ids fails the call.
3. **Reject means "no counterpart".** Reject a mapping only when the
   external category genuinely has no place in the taxonomy (store-internal
   groupings, promotions, duplicates). Rejected categories keep their
   products ingestable; the products simply carry no taxonomy node.
4. **Confidence is 0-100.** apply_automatic_match records the matcher's
   confidence as an integer percentage. Values outside the range fail.
5. **Prefer the deepest sensible node.** When several taxonomy nodes fit,
   map to the most specific one whose meaning fully covers the external
   category. Map to a parent only when the external category spans several
   children.
6. **Leave notes on judgement calls.** When a confirm or reject is not
   obvious from the names alone, pass a short note explaining the decision.

## Typical session

1. ` + "`" + `mapping_stats` + "`" + ` to see how much review work a source has.
2. ` + "`" + `list_pending_mappings` + "`" + ` to fetch the queue.
3. For each entry: ` + "`" + `search_taxonomy` + "`" + ` with the external name, then
   ` + "`" + `confirm_mapping` + "`" + ` or ` + "`" + `reject_mapping` + "`" + `.
`
