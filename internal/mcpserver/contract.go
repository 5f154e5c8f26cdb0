package mcpserver

// LinkSyntax describes which Markdown links the tools recognize and how
// they are resolved, so that callers know what a move will rewrite.
const LinkSyntax = `# mdref Link Syntax

The tools recognize inline links of the form ` + "`" + `[text](target)` + "`" + `.

## Recognized

- ` + "`" + `[text](target)` + "`" + ` anywhere on a line, including image links
  ` + "`" + `![alt](img.png)` + "`" + `. Several links per line are fine.
- The label may be empty; it may not contain ` + "`" + `]` + "`" + `.
- The target runs up to the first ` + "`" + `)` + "`" + ` and may not be empty.

## Not recognized

- Reference-style links (` + "`" + `[text][id]` + "`" + ` with ` + "`" + `[id]: target` + "`" + `).
- Autolinks (` + "`" + `<https://...>` + "`" + `) and wikilinks (` + "`" + `[[page]]` + "`" + `).
- Links spanning more than one line.

## Resolution

1. Absolute targets are used as-is.
2. Relative targets are joined to the directory of the document that
   contains the link. They are never resolved against the working directory.
3. A target only counts as a reference when the joined path exists.
   Symbolic links are followed, so two spellings of the same file match.
4. ` + "`" + `#fragment` + "`" + ` suffixes and URL targets (` + "`" + `https://...` + "`" + `) are not
   resolved; ` + "`" + `check_links` + "`" + ` ignores them.

## Moves

` + "`" + `move_file` + "`" + ` and ` + "`" + `rename_file` + "`" + ` rewrite every link that resolves to the moved
document, plus the relative links inside it. Line and column positions are
1-based; columns count Unicode code points. References that cannot be
rewritten are listed under ` + "`" + `skipped` + "`" + ` with a reason and never abort the move.
`
