package gemini

// transcriptionPrompt asks for a plain transcription. Marker lines are the
// contract with the annotation parser, so they must survive untouched.
const transcriptionPrompt = `You are transcribing photographs of one handwritten notebook page.
The photographs are given in order and may overlap; produce a single transcription of the page.

Rules:
- Output only the transcribed text, with no commentary, headings or formatting.
- Keep the original line breaks. One handwritten line is one output line.
- Lines that begin with "--kw" are markers. Copy them exactly, including "--kw",
  the code that follows (TODO, CAL or NOTE) and any colon.
- Do not correct spelling or grammar.
- If a word is illegible, write [illegible].
- If the page is blank, output nothing.`
